package engines

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrUnknownVendor = errors.New("engines: unknown vendor")
	ErrMissingAPIKey = errors.New("engines: missing api key")
)

// describeError renders a vendor failure as the short message shown to users.
func describeError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) && oaErr.Message != "" {
		return oaErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.Err != nil {
		return reqErr.Err.Error()
	}

	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if raw := anErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &body) == nil && body.Error.Message != "" {
			return body.Error.Message
		}
		if anErr.StatusCode != 0 {
			return fmt.Sprintf("anthropic: status %d", anErr.StatusCode)
		}
	}

	return err.Error()
}
