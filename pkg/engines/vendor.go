package engines

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
	VendorXAI       Vendor = "xai"
	VendorDeepSeek  Vendor = "deepseek"
)

var Vendors = []Vendor{VendorOpenAI, VendorAnthropic, VendorXAI, VendorDeepSeek}

func ParseVendor(s string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VendorOpenAI, VendorAnthropic, VendorXAI, VendorDeepSeek:
		return v, nil
	}
	return "", errors.Wrapf(ErrUnknownVendor, "%q", s)
}

// Spec carries everything needed to build an engine.
type Spec struct {
	Vendor Vendor
	APIKey string
	Model  string
	System string
	// History seeds the transcript, oldest first.
	History []Turn

	// ThinkingBudget enables extended thinking on vendors that support it.
	ThinkingBudget int64
	MaxTokens      int64

	// BaseURL overrides the vendor endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// New builds the adapter matching s.Vendor.
func New(s Spec) (Engine, error) {
	if s.APIKey == "" {
		return nil, errors.Wrapf(ErrMissingAPIKey, "vendor %s", s.Vendor)
	}
	switch s.Vendor {
	case VendorOpenAI:
		return NewOpenAI(s), nil
	case VendorAnthropic:
		return NewAnthropic(s), nil
	case VendorXAI:
		return NewXAI(s), nil
	case VendorDeepSeek:
		return NewDeepSeek(s), nil
	}
	return nil, errors.Wrapf(ErrUnknownVendor, "%q", s.Vendor)
}
