// Package jobdesc imports a job description from a web page.
package jobdesc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
	"github.com/roelfdiedericks/gocoach/internal/tokens"
)

// ErrNoContent means the page had no usable text.
var ErrNoContent = errors.New("jobdesc: page has no readable content")

const (
	maxBodyBytes = 2 << 20
	// readability output shorter than this is treated as a failed extraction
	minArticleChars = 200
)

// Options configures an Importer.
type Options struct {
	Timeout   time.Duration
	MaxTokens int // 0 keeps the full text
	// AllowPrivate skips the public-address check (tests, intranet job boards).
	AllowPrivate bool
	// Browser is BrowserAuto, BrowserAlways or BrowserNever. Empty means auto
	// when a Renderer is set.
	Browser  string
	Renderer Renderer
}

// Importer fetches job descriptions, rendering script-heavy pages in a
// browser when one is available.
type Importer struct {
	client *http.Client
	opts   Options
}

// New creates an importer.
func New(opts Options) *Importer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Browser == "" {
		opts.Browser = BrowserAuto
	}
	return &Importer{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

// Close releases the renderer's browser, if one was launched.
func (i *Importer) Close() error {
	if c, ok := i.opts.Renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Import fetches rawURL and returns the job description as plain text or
// Markdown, trimmed to the token budget.
func (i *Importer) Import(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !i.opts.AllowPrivate {
		if err := ValidateURL(rawURL); err != nil {
			return "", err
		}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("jobdesc: invalid URL: %w", err)
	}

	timer := MetricStart("jobdesc", "import")
	defer MetricEnd(timer)

	text, err := i.render(ctx, rawURL, parsed)
	if err != nil {
		if i.opts.Browser == BrowserAlways {
			MetricFailWithReason("jobdesc", "import", "render")
			return "", err
		}
		switch {
		case errors.Is(err, errRenderSkipped):
		case errors.Is(err, ErrNoBrowser):
			L_debug("jobdesc: no browser, using HTTP", "url", rawURL)
		default:
			L_warn("jobdesc: browser failed, falling back to HTTP", "url", rawURL, "error", err)
		}
		text, err = i.fetchText(ctx, rawURL, parsed)
		if err != nil {
			return "", err
		}
	}
	if text == "" {
		MetricFailWithReason("jobdesc", "import", "empty")
		return "", ErrNoContent
	}

	if i.opts.MaxTokens > 0 {
		var truncated bool
		text, truncated = tokens.Truncate(text, i.opts.MaxTokens)
		if truncated {
			L_info("jobdesc: description truncated", "url", rawURL, "maxTokens", i.opts.MaxTokens)
		}
	}
	MetricSuccess("jobdesc", "import")
	L_info("jobdesc: imported", "url", rawURL, "chars", len(text))
	return text, nil
}

var errRenderSkipped = errors.New("jobdesc: browser rendering disabled")

// render loads the page in the browser and extracts its text.
func (i *Importer) render(ctx context.Context, rawURL string, parsed *url.URL) (string, error) {
	if i.opts.Renderer == nil || i.opts.Browser == BrowserNever {
		if i.opts.Browser == BrowserAlways {
			return "", ErrNoBrowser
		}
		return "", errRenderSkipped
	}
	html, err := i.opts.Renderer.Render(ctx, rawURL)
	if err != nil {
		return "", err
	}
	text, err := extract(html, parsed)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoContent
	}
	L_debug("jobdesc: extracted via browser", "url", rawURL, "chars", len(text))
	return text, nil
}

// fetchText downloads the page over plain HTTP and extracts its text.
func (i *Importer) fetchText(ctx context.Context, rawURL string, parsed *url.URL) (string, error) {
	body, contentType, err := i.fetch(ctx, rawURL)
	if err != nil {
		MetricFailWithReason("jobdesc", "import", "fetch")
		return "", err
	}
	if !isHTML(contentType) {
		return strings.TrimSpace(body), nil
	}
	text, err := extract(body, parsed)
	if err != nil {
		MetricFailWithReason("jobdesc", "import", "extract")
		return "", err
	}
	return text, nil
}

func (i *Importer) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("jobdesc: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) gocoach")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := i.client.Do(req)
	if err != nil {
		L_warn("jobdesc: request failed", "url", rawURL, "error", err)
		return "", "", fmt.Errorf("jobdesc: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		L_warn("jobdesc: non-200 status", "url", rawURL, "status", resp.StatusCode)
		return "", "", fmt.Errorf("jobdesc: fetch: HTTP %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("jobdesc: read body: %w", err)
	}
	L_debug("jobdesc: fetched", "url", rawURL, "bytes", len(data))
	return string(data), resp.Header.Get("Content-Type"), nil
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml")
}

// extract pulls the main article text; pages readability can't make sense of
// are converted to Markdown whole.
func extract(html string, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) >= minArticleChars {
			L_debug("jobdesc: readability extracted", "title", article.Title, "chars", len(text))
			if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
				text = title + "\n\n" + text
			}
			return text, nil
		}
		L_debug("jobdesc: readability found little text, converting page", "chars", len(text))
	} else {
		L_debug("jobdesc: readability failed, converting page", "error", err)
	}

	markdown, err := htmltomd.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("jobdesc: convert page: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
