package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/deamp/internal/config"
	"github.com/nao1215/deamp/internal/model"
	"github.com/nao1215/deamp/internal/settings"
)

const resultsPage = `<!DOCTYPE html>
<html><head><title>news - Search</title></head>
<body>
<div id="search">
  <a data-ved="ved-1" href="https://www.google.com/amp/s/example.com/amp/story" data-amp-cur="https://example.com/amp/story">
    Story <span aria-label="AMP logo">AMP</span>
  </a>
  <a data-ved="ved-2" href="https://ignored.example.org/amp/page">Ignored</a>
  <a data-ved="ved-3" href="/url?q=local">Relative</a>
</div>
</body></html>`

const baseURL = "https://www.google.com/search?q=news"

// writeTestFile writes content into dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// readTestFile returns the content of path.
func readTestFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// jsonReport mirrors the parts of the JSON report the tests check.
type jsonReport struct {
	Version string `json:"version"`
	Totals  struct {
		Pages  int           `json:"pages"`
		Failed int           `json:"failed"`
		Links  model.Summary `json:"links"`
	} `json:"totals"`
	Pages []struct {
		Source     string              `json:"source"`
		OutputPath string              `json:"output_path"`
		Passes     int                 `json:"passes"`
		Links      []model.LinkOutcome `json:"links"`
		Error      string              `json:"error"`
	} `json:"pages"`
}

func TestNewRewriteCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRewriteCmd()

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "ignore", shorthand: "i", defValue: "[]"},
		{name: "no-store", defValue: "false"},
		{name: "append", shorthand: "a", defValue: "[]"},
		{name: "segment", defValue: config.DefaultSegment},
		{name: "batch", shorthand: "b", defValue: "4"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "output-dir", shorthand: "O", defValue: ""},
		{name: "minify", shorthand: "m", defValue: "false"},
		{name: "report", shorthand: "r", defValue: config.ReportText},
		{name: "timeout", shorthand: "t", defValue: "30s"},
		{name: "config", shorthand: "c", defValue: ""},
	}
	for _, tt := range flags {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("shorthand = %q, want %q", flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("default = %q, want %q", flag.DefValue, tt.defValue)
			}
		})
	}
}

func TestRewriteCmd(t *testing.T) {
	t.Parallel()

	t.Run("file to stdout with text report", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := writeTestFile(t, dir, "results.html", resultsPage)

		stdout, stderr, err := runRoot(t, "", "rewrite", "--no-store",
			"--ignore", "ignored.example.org", "--base-url", baseURL, input)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}

		for _, want := range []string{
			`href="https://example.com/story"`,
			`href="https://ignored.example.org/amp/page"`,
			`href="https://www.google.com/url?q=local"`,
			`style="display: none"`,
		} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %s in output:\n%s", want, stdout)
			}
		}
		for _, want := range []string{"DEAMP REPORT", "Rewritten:", "Ignored:", "Badges hidden:"} {
			if !strings.Contains(stderr, want) {
				t.Errorf("expected %q in report:\n%s", want, stderr)
			}
		}
	})

	t.Run("output dir with json report file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := writeTestFile(t, dir, "results.html", resultsPage)
		outDir := filepath.Join(dir, "out")
		reportFile := filepath.Join(dir, "reports", "run.json")

		stdout, stderr, err := runRoot(t, "", "rewrite", "--no-store",
			"-i", "ignored.example.org", "--base-url", baseURL,
			"-O", outDir, "-r", "json", "--report-file", reportFile, input)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if stdout != "" {
			t.Errorf("expected nothing on stdout, got %q", stdout)
		}
		if !strings.Contains(stderr, "DEAMP REPORT") {
			t.Errorf("expected text summary on stderr, got %q", stderr)
		}

		out := readTestFile(t, filepath.Join(outDir, "results.html"))
		if !strings.Contains(out, `href="https://example.com/story"`) {
			t.Errorf("page not rewritten:\n%s", out)
		}

		var r jsonReport
		if err := json.Unmarshal([]byte(readTestFile(t, reportFile)), &r); err != nil {
			t.Fatalf("invalid JSON report: %v", err)
		}
		if r.Version == "" {
			t.Error("expected version in report")
		}
		if r.Totals.Pages != 1 || r.Totals.Failed != 0 {
			t.Errorf("totals = %+v", r.Totals)
		}
		if got := r.Totals.Links.Count(model.StatusRewritten); got != 2 {
			t.Errorf("rewritten = %d, want 2", got)
		}
		if got := r.Totals.Links.Count(model.StatusIgnored); got != 1 {
			t.Errorf("ignored = %d, want 1", got)
		}
		if r.Totals.Links.BadgesHidden != 1 {
			t.Errorf("badges hidden = %d, want 1", r.Totals.Links.BadgesHidden)
		}
		if len(r.Pages) != 1 || r.Pages[0].OutputPath != filepath.Join(outDir, "results.html") {
			t.Errorf("pages = %+v", r.Pages)
		}

		info, err := os.Stat(reportFile)
		if err != nil {
			t.Fatalf("failed to stat report: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("report permissions = %o, want 600", perm)
		}
	})

	t.Run("stored ignore list applies", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		dbDir := filepath.Join(dir, "db")
		store, err := settings.Open(dbDir, settings.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if _, err := store.AddIgnoredHostname(context.Background(), "example.com"); err != nil {
			t.Fatalf("failed to add hostname: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}

		input := writeTestFile(t, dir, "results.html", resultsPage)
		stdout, stderr, err := runRoot(t, "", "rewrite", "--db-dir", dbDir, "--base-url", baseURL, input)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}

		// example.com is ignored; ignored.example.org is not.
		if !strings.Contains(stdout, `href="https://www.google.com/amp/s/example.com/amp/story"`) {
			t.Errorf("ignored link was rewritten:\n%s", stdout)
		}
		if !strings.Contains(stdout, `href="https://ignored.example.org/page"`) {
			t.Errorf("expected second link rewritten:\n%s", stdout)
		}
		if !strings.Contains(stderr, "Ignoring:   example.com") {
			t.Errorf("expected ignore list in report:\n%s", stderr)
		}
	})

	t.Run("stdin input", func(t *testing.T) {
		t.Parallel()

		stdout, stderr, err := runRoot(t, resultsPage, "rewrite", "--no-store", "--base-url", baseURL, "-")
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stdout, `href="https://example.com/story"`) {
			t.Errorf("page not rewritten:\n%s", stdout)
		}
		if !strings.Contains(stderr, "Source:     -") {
			t.Errorf("expected stdin source in report:\n%s", stderr)
		}
	})

	t.Run("append fragment and markdown report", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := writeTestFile(t, dir, "results.html", resultsPage)
		fragment := writeTestFile(t, dir, "more.html",
			`<a data-ved="ved-4" href="https://later.example.net/news/amp/">Later</a>`)

		stdout, stderr, err := runRoot(t, "", "rewrite", "--no-store", "--base-url", baseURL,
			"-a", fragment, "-r", "markdown", input)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stdout, `href="https://later.example.net/news/"`) {
			t.Errorf("appended link not rewritten:\n%s", stdout)
		}
		if !strings.Contains(stderr, "# deamp Report") || !strings.Contains(stderr, "ved-4") {
			t.Errorf("unexpected markdown report:\n%s", stderr)
		}
	})

	t.Run("minify", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := writeTestFile(t, dir, "results.html", resultsPage)

		plain, _, err := runRoot(t, "", "rewrite", "--no-store", "--base-url", baseURL, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		minified, _, err := runRoot(t, "", "rewrite", "--no-store", "--base-url", baseURL, "-m", input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(minified) >= len(plain) {
			t.Errorf("minified output (%d bytes) not smaller than plain (%d bytes)", len(minified), len(plain))
		}
		if !strings.Contains(minified, "https://example.com/story") {
			t.Errorf("minified page not rewritten:\n%s", minified)
		}
	})

	t.Run("failed page is reported", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := writeTestFile(t, dir, "results.html", resultsPage)
		missing := filepath.Join(dir, "missing.html")

		_, stderr, err := runRoot(t, "", "rewrite", "--no-store", "--base-url", baseURL,
			"-O", filepath.Join(dir, "out"), input, missing)
		if !errors.Is(err, errPagesFailed) {
			t.Fatalf("expected errPagesFailed, got %v", err)
		}
		if !strings.Contains(stderr, "Error: failed to open") {
			t.Errorf("expected page error in report:\n%s", stderr)
		}
		if _, err := os.Stat(filepath.Join(dir, "out", "results.html")); err != nil {
			t.Errorf("good page should still be written: %v", err)
		}
	})
}

func TestRewriteCmdFetch(t *testing.T) {
	t.Parallel()

	type seen struct{ cookie, userAgent string }
	requests := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case requests <- seen{cookie: r.Header.Get("Cookie"), userAgent: r.Header.Get("User-Agent")}:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, resultsPage)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	configFile := writeTestFile(t, dir, "deamp.yaml", `ignore:
  - ignored.example.org
sites:
  127.0.0.1:
    cookie: "CONSENT=YES"
`)
	outDir := filepath.Join(dir, "out")

	_, stderr, err := runRoot(t, "", "rewrite", "--no-store", "-c", configFile,
		"--user-agent", "deamp-test/1.0", "-O", outDir, srv.URL+"/search?q=news")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, stderr)
	}

	req := <-requests
	if req.cookie != "CONSENT=YES" {
		t.Errorf("cookie = %q, want %q", req.cookie, "CONSENT=YES")
	}
	if req.userAgent != "deamp-test/1.0" {
		t.Errorf("user agent = %q, want %q", req.userAgent, "deamp-test/1.0")
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("failed to read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one output file, got %d", len(entries))
	}
	out := readTestFile(t, filepath.Join(outDir, entries[0].Name()))

	for _, want := range []string{
		`href="https://example.com/story"`,
		`href="https://ignored.example.org/amp/page"`,
		`href="` + srv.URL + `/url?q=local"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output:\n%s", want, out)
		}
	}
}

func TestRewriteCmdErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeTestFile(t, dir, "results.html", resultsPage)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "no input",
			args:    []string{"rewrite", "--no-store"},
			wantErr: config.ErrNoInput,
		},
		{
			name:    "output and output dir",
			args:    []string{"rewrite", "--no-store", "-o", filepath.Join(dir, "a.html"), "-O", dir, input},
			wantErr: config.ErrConflictingOutputs,
		},
		{
			name:    "output with several inputs",
			args:    []string{"rewrite", "--no-store", "-o", filepath.Join(dir, "a.html"), input, input},
			wantErr: config.ErrOutputNeedsSingleInput,
		},
		{
			name:    "unknown report format",
			args:    []string{"rewrite", "--no-store", "-r", "xml", input},
			wantErr: config.ErrInvalidReportFormat,
		},
		{
			name:    "invalid segment",
			args:    []string{"rewrite", "--no-store", "--segment", "a/b", input},
			wantErr: config.ErrInvalidSegment,
		},
		{
			name:    "relative base URL",
			args:    []string{"rewrite", "--no-store", "--base-url", "/search", input},
			wantErr: config.ErrInvalidBaseURL,
		},
		{
			name:    "missing config file",
			args:    []string{"rewrite", "--no-store", "-c", filepath.Join(dir, "nope.yaml"), input},
			wantErr: config.ErrConfigNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runRoot(t, "", tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configFile := writeTestFile(t, dir, "deamp.yaml", `segment: lite
proxy: 127.0.0.1:1080
ignore:
  - from-file.example.com
defaults:
  userAgent: test-agent
`)

	t.Run("file fills unset values", func(t *testing.T) {
		t.Parallel()

		cmd := NewRewriteCmd()
		if err := cmd.ParseFlags([]string{"-c", configFile, "-i", "from-flag.example.com"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"page.html"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Segment != "lite" {
			t.Errorf("segment = %q, want lite", cfg.Segment)
		}
		if cfg.ProxyAddress != "127.0.0.1:1080" {
			t.Errorf("proxy = %q", cfg.ProxyAddress)
		}
		if cfg.UserAgent != "test-agent" {
			t.Errorf("user agent = %q", cfg.UserAgent)
		}
		want := []string{"from-flag.example.com", "from-file.example.com"}
		if strings.Join(cfg.IgnoreHosts, ",") != strings.Join(want, ",") {
			t.Errorf("ignore hosts = %v, want %v", cfg.IgnoreHosts, want)
		}
		if len(cfg.Inputs) != 1 || cfg.Inputs[0] != "page.html" {
			t.Errorf("inputs = %v", cfg.Inputs)
		}
	})

	t.Run("flags win over the file", func(t *testing.T) {
		t.Parallel()

		cmd := NewRewriteCmd()
		if err := cmd.ParseFlags([]string{"-c", configFile, "--proxy", "10.0.0.1:9050", "--user-agent", "flag-agent"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"page.html"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProxyAddress != "10.0.0.1:9050" {
			t.Errorf("proxy = %q", cfg.ProxyAddress)
		}
		if cfg.UserAgent != "flag-agent" {
			t.Errorf("user agent = %q", cfg.UserAgent)
		}
	})
}
