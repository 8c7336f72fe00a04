package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestNewGitHubClientRepository(t *testing.T) {
	for _, repo := range []string{"", "owner", "/repo", "owner/", "a/b/c"} {
		if _, err := NewGitHubClient(repo); !errors.Is(err, ErrInvalidRepository) {
			t.Errorf("NewGitHubClient(%q): expected ErrInvalidRepository, got %v", repo, err)
		}
	}
	if _, err := NewGitHubClient("carlosperate/arm-none-eabi-gcc-action"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestListReleases(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/releases" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected token on API request, got %q", got)
		}
		var page []githubRelease
		switch r.URL.Query().Get("page") {
		case "":
			page = []githubRelease{
				{TagName: "v13.3.1", Assets: []githubAsset{{Name: "a.whl", BrowserDownloadURL: "https://x/a.whl", Size: 3}}},
				{TagName: "v15.0.0", Draft: true},
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/owner/repo/releases?page=2>; rel="next", <%s/last>; rel="last"`, srv.URL, srv.URL))
		case "2":
			page = []githubRelease{
				{TagName: "nightly"},
				{TagName: "v14.2.1", Prerelease: true},
			}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c, err := NewGitHubClient("owner/repo", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithToken("secret"))
	if err != nil {
		t.Fatal(err)
	}
	releases, err := c.ListReleases(context.Background())
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}

	var tags []string
	for _, r := range releases {
		tags = append(tags, r.TagName)
	}
	want := []string{"v14.2.1", "v13.3.1", "nightly"}
	if fmt.Sprint(tags) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, tags)
	}
	if len(releases[1].Assets) != 1 || releases[1].Assets[0].Size != 3 {
		t.Errorf("assets not decoded: %+v", releases[1])
	}
}

func TestListReleasesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Limit", "60")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewGitHubClient("owner/repo", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.ListReleases(context.Background())
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.Limit != 60 {
		t.Errorf("expected RateLimitError, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("token must not be sent to foreign hosts")
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	c, _ := NewGitHubClient("owner/repo", WithHTTPClient(srv.Client()), WithToken("secret"))

	body, size, err := c.Download(context.Background(), srv.URL+"/file")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "payload" || size != 7 {
		t.Errorf("unexpected download %q (%d bytes)", data, size)
	}

	_, _, err = c.Download(context.Background(), srv.URL+"/missing?token=abc")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.URL != srv.URL+"/missing" {
		t.Errorf("expected redacted URL, got %s", se.URL)
	}
}

func TestIsGitHubHost(t *testing.T) {
	tests := []struct {
		req  string
		base string
		want bool
	}{
		{"https://api.github.com/repos/x", DefaultAPIURL, true},
		{"https://github.com/o/r/releases/download/v1/a.whl", DefaultAPIURL, true},
		{"https://objects.githubusercontent.com/a.whl", DefaultAPIURL, false},
		{"http://127.0.0.1:8080/a", "http://127.0.0.1:8080", true},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.req)
		if got := isGitHubHost(u, tt.base); got != tt.want {
			t.Errorf("isGitHubHost(%s, %s) = %v, want %v", tt.req, tt.base, got, tt.want)
		}
	}
}

func TestParseLinkHeader(t *testing.T) {
	h := `<https://api.github.com/r?page=3>; rel="next", <https://api.github.com/r?page=9>; rel="last"`
	if got := parseLinkHeader(h); got != "https://api.github.com/r?page=3" {
		t.Errorf("unexpected next link %q", got)
	}
	if got := parseLinkHeader(`<https://api.github.com/r?page=1>; rel="prev"`); got != "" {
		t.Errorf("expected no next link, got %q", got)
	}
}
