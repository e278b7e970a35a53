// Package fetch downloads web pages and renders their main content as Markdown.
package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	maxBodySize  = 5 * 1024 * 1024
	maxRedirects = 10
	userAgent    = "agora/1.0"
)

type Fetcher struct {
	client *http.Client
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Timeout and redirect policy are
// the caller's responsibility then.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchAsText fetches url and returns the Markdown rendering of its main content.
func (f *Fetcher) FetchAsText(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", errors.Errorf("fetch: unsupported url %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "fetch: request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetch: %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetch: %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", errors.Wrapf(err, "fetch: read %s", url)
	}
	out, err := HTMLToMarkdown(string(body))
	if err != nil {
		return "", err
	}
	log.Debug().Str("component", "fetch").Str("url", url).Int("size", len(body)).Int("markdown", len(out)).Msg("fetched page")
	return out, nil
}

// HTMLToMarkdown picks the page's main content (a lone <article>, else the
// first <main>, else <body>), drops scripts and styles and converts it.
func HTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "fetch: parse html")
	}
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("article")
	if sel.Length() != 1 {
		sel = doc.Find("main").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	content, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", errors.Wrap(err, "fetch: render html")
	}

	conv := md.NewConverter("", true, &md.Options{HeadingStyle: "atx"})
	out, err := conv.ConvertString(content)
	if err != nil {
		return "", errors.Wrap(err, "fetch: convert")
	}
	out = strings.TrimSpace(out)
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out, nil
}
