package jobdesc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		blocked bool
	}{
		{"", true},
		{"ftp://example.com/job", true},
		{"file:///etc/passwd", true},
		{"http://127.0.0.1/job", true},
		{"http://[::1]/job", true},
		{"http://10.1.2.3/job", true},
		{"http://192.168.0.10/job", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://metadata.google.internal/", true},
		{"http://0.0.0.0/", true},
		{"https://93.184.216.34/careers/go-engineer", false},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if got := err != nil; got != tt.blocked {
			t.Errorf("ValidateURL(%q) blocked = %v, want %v (err %v)", tt.url, got, tt.blocked, err)
		}
		var urlErr *URLError
		if err != nil && !errors.As(err, &urlErr) {
			t.Errorf("ValidateURL(%q) error type = %T, want *URLError", tt.url, err)
		}
	}
}

func serve(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImportPlainText(t *testing.T) {
	srv := serve(t, "text/plain; charset=utf-8", "  Go engineer. Kafka, Postgres.  \n", http.StatusOK)
	imp := New(Options{AllowPrivate: true})

	got, err := imp.Import(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got != "Go engineer. Kafka, Postgres." {
		t.Errorf("Import() = %q", got)
	}
}

func TestImportArticle(t *testing.T) {
	para := strings.Repeat("You will design and operate Go services that consume Kafka topics and store results in Postgres. ", 6)
	page := `<html><head><title>Senior Go Engineer</title></head><body>
<nav><a href="/">Home</a><a href="/jobs">Jobs</a></nav>
<article><h1>Senior Go Engineer</h1><p>` + para + `</p><p>` + para + `</p></article>
<footer>Copyright</footer></body></html>`
	srv := serve(t, "text/html; charset=utf-8", page, http.StatusOK)

	got, err := New(Options{AllowPrivate: true}).Import(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !strings.Contains(got, "consume Kafka topics") {
		t.Errorf("Import() missing article text: %q", got)
	}
	if strings.Contains(got, "Copyright") {
		t.Errorf("Import() kept page chrome: %q", got)
	}
}

func TestImportShortPageFallsBackToMarkdown(t *testing.T) {
	page := `<html><body><h1>Go Engineer</h1><ul><li>Go</li><li>Kafka</li></ul></body></html>`
	srv := serve(t, "text/html", page, http.StatusOK)

	got, err := New(Options{AllowPrivate: true}).Import(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !strings.Contains(got, "# Go Engineer") || !strings.Contains(got, "Kafka") {
		t.Errorf("Import() = %q, want markdown of the page", got)
	}
}

func TestImportErrors(t *testing.T) {
	notFound := serve(t, "text/html", "gone", http.StatusNotFound)
	empty := serve(t, "text/plain", "   ", http.StatusOK)
	imp := New(Options{AllowPrivate: true})

	if _, err := imp.Import(context.Background(), notFound.URL); err == nil {
		t.Error("Import(404) error = nil, want error")
	}
	if _, err := imp.Import(context.Background(), empty.URL); !errors.Is(err, ErrNoContent) {
		t.Errorf("Import(empty) error = %v, want ErrNoContent", err)
	}

	var urlErr *URLError
	if _, err := New(Options{}).Import(context.Background(), notFound.URL); !errors.As(err, &urlErr) {
		t.Errorf("Import(loopback) error = %v, want *URLError", err)
	}
}

func TestImportTruncates(t *testing.T) {
	long := strings.Repeat("Kafka consumer groups and Go worker pools. ", 400)
	srv := serve(t, "text/plain", long, http.StatusOK)

	got, err := New(Options{AllowPrivate: true, MaxTokens: 50}).Import(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(got) >= len(strings.TrimSpace(long)) {
		t.Errorf("Import() length = %d, want truncated below %d", len(got), len(long))
	}
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	r.calls++
	return r.html, r.err
}

func TestImportBrowserModes(t *testing.T) {
	para := strings.Repeat("You will build Go services on Kafka and tune Postgres queries for the hiring team. ", 5)
	rendered := `<html><head><title>Go Engineer</title></head><body><article><h1>Go Engineer</h1><p>` +
		para + `</p></article></body></html>`
	// what a script-rendered job board returns without a browser
	srv := serve(t, "text/plain", "Static posting: Go engineer.", http.StatusOK)

	tests := []struct {
		name      string
		mode      string
		renderer  *fakeRenderer
		want      string
		wantErr   bool
		wantCalls int
	}{
		{"auto uses the rendered page", BrowserAuto, &fakeRenderer{html: rendered}, "tune Postgres queries", false, 1},
		{"auto falls back to HTTP", BrowserAuto, &fakeRenderer{err: errors.New("chrome crashed")}, "Static posting", false, 1},
		{"auto falls back on an empty render", BrowserAuto, &fakeRenderer{html: "<html><body></body></html>"}, "Static posting", false, 1},
		{"always reports the render error", BrowserAlways, &fakeRenderer{err: errors.New("chrome crashed")}, "", true, 1},
		{"never skips the browser", BrowserNever, &fakeRenderer{html: rendered}, "Static posting", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := New(Options{AllowPrivate: true, Browser: tt.mode, Renderer: tt.renderer})
			got, err := imp.Import(context.Background(), srv.URL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Import() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Import() = %q, want it to contain %q", got, tt.want)
			}
			if tt.renderer.calls != tt.wantCalls {
				t.Errorf("Render calls = %d, want %d", tt.renderer.calls, tt.wantCalls)
			}
		})
	}
}

func TestImportAlwaysWithoutBrowser(t *testing.T) {
	srv := serve(t, "text/plain", "Go engineer.", http.StatusOK)
	imp := New(Options{AllowPrivate: true, Browser: BrowserAlways})
	if _, err := imp.Import(context.Background(), srv.URL); !errors.Is(err, ErrNoBrowser) {
		t.Errorf("Import() error = %v, want ErrNoBrowser", err)
	}
	if err := imp.Close(); err != nil {
		t.Errorf("Close() without renderer = %v", err)
	}
}

func TestRodRendererCloseBeforeLaunch(t *testing.T) {
	r := &RodRenderer{}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	imp := New(Options{Renderer: r})
	if err := imp.Close(); err != nil {
		t.Errorf("Importer.Close() = %v, want nil", err)
	}
}
