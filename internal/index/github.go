package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/network"
	"golang.org/x/mod/semver"
)

const (
	// defaultPerPage is the number of releases fetched per API page.
	defaultPerPage = 100

	// maxPages bounds pagination.
	maxPages = 20

	// maxJSONResponseBytes caps a single API response.
	maxJSONResponseBytes = 10 << 20

	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"
)

var ErrInvalidRepository = errors.New("repository must be given as OWNER/NAME")

type (
	// Release is a published release and its attached files.
	Release struct {
		TagName    string
		Name       string
		Prerelease bool
		Draft      bool
		Assets     []Asset
	}

	// Asset is one file attached to a release.
	Asset struct {
		Name               string
		BrowserDownloadURL string
		Size               int64
	}

	// ReleaseSource lists releases and downloads their assets.
	ReleaseSource interface {
		ListReleases(ctx context.Context) ([]Release, error)
		Download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error)
	}

	// StatusError is returned for a download answered with a non-200 status.
	StatusError struct {
		URL  string
		Code int
	}

	// RateLimitError is returned when the API rate limit is exhausted.
	RateLimitError struct {
		Limit   int
		ResetAt time.Time
	}

	githubRelease struct {
		TagName    string        `json:"tag_name"`
		Name       string        `json:"name"`
		Prerelease bool          `json:"prerelease"`
		Draft      bool          `json:"draft"`
		Assets     []githubAsset `json:"assets"`
	}

	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}

	// GitHubClient reads releases of one repository from the GitHub REST API.
	GitHubClient struct {
		httpClient *http.Client
		owner      string
		repo       string
		baseURL    string
		token      string
		userAgent  string
	}

	// ClientOption configures a GitHubClient.
	ClientOption func(*GitHubClient)
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("downloading %s: unexpected status %d", e.URL, e.Code)
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit of %d exceeded, resets at %s", e.Limit, e.ResetAt.UTC().Format("15:04 UTC"))
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *GitHubClient) { g.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) ClientOption {
	return func(g *GitHubClient) { g.baseURL = strings.TrimRight(base, "/") }
}

// WithToken authenticates API requests.
func WithToken(token string) ClientOption {
	return func(g *GitHubClient) { g.token = token }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(g *GitHubClient) { g.userAgent = ua }
}

// NewGitHubClient returns a client for repository, given as OWNER/NAME.
func NewGitHubClient(repository string, opts ...ClientOption) (*GitHubClient, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
	}
	c := &GitHubClient{
		httpClient: network.NewSecureHTTPClient(""),
		owner:      owner,
		repo:       repo,
		baseURL:    DefaultAPIURL,
		userAgent:  network.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListReleases returns every published release, drafts excluded, newest
// version first. Tags that are not semantic versions keep their API order
// after the ones that are.
func (c *GitHubClient) ListReleases(ctx context.Context) ([]Release, error) {
	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.baseURL, c.owner, c.repo, defaultPerPage)

	var all []Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		resp, err := c.doRequest(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("listing releases: %w", err)
		}
		if err := checkRateLimit(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("listing releases of %s/%s: unexpected status %d", c.owner, c.repo, resp.StatusCode)
		}

		var raw []githubRelease
		err = json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&raw)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("listing releases: decoding response: %w", err)
		}
		for _, gr := range raw {
			if !gr.Draft {
				all = append(all, toRelease(gr))
			}
		}
		pageURL = parseLinkHeader(resp.Header.Get("Link"))
	}

	sortReleasesBySemverDesc(all)
	return all, nil
}

// Download opens assetURL and returns its body and length (-1 if unknown).
// The caller closes the body.
func (c *GitHubClient) Download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error) {
	resp, err := c.doRequest(ctx, assetURL)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading %s: %w", redactURL(assetURL), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, &StatusError{URL: redactURL(assetURL), Code: resp.StatusCode}
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *GitHubClient) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	// The token must not leak to CDNs that assets redirect to.
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

func checkRateLimit(resp *http.Response) error {
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil || remaining > 0 {
		return nil
	}
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	reset, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	return &RateLimitError{Limit: limit, ResetAt: time.Unix(reset, 0)}
}

// parseLinkHeader returns the rel="next" URL of a Link header, or "".
func parseLinkHeader(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

func toRelease(gr githubRelease) Release {
	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset(ga))
	}
	return Release{
		TagName:    gr.TagName,
		Name:       gr.Name,
		Prerelease: gr.Prerelease,
		Draft:      gr.Draft,
		Assets:     assets,
	}
}

// semverTag accepts tags with or without the leading "v".
func semverTag(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}

func sortReleasesBySemverDesc(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		return semver.Compare(semverTag(b.TagName), semverTag(a.TagName))
	})
}

func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	return strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com")
}

// redactURL drops query and fragment from rawURL for error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
