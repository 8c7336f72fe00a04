// Package pkgfetcher downloads toolchain archives and checks their integrity.
package pkgfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/network"
	"github.com/schollz/progressbar/v3"
)

// ChunkSize is the buffer size used while streaming a download to disk.
const ChunkSize = 8192

var (
	ErrDestinationNotFound   = errors.New("download destination directory does not exist")
	ErrArtifactAlreadyExists = errors.New("artifact already downloaded")
)

// Fetcher downloads files over HTTP.
type Fetcher struct {
	client   *http.Client
	progress io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithProgressOutput sets where the progress bar is drawn. A nil writer
// disables it.
func WithProgressOutput(w io.Writer) Option {
	return func(f *Fetcher) { f.progress = w }
}

// New returns a Fetcher using the hardened client from the network package.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   network.NewSecureHTTPClient(""),
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url into destDir with the default Fetcher.
func Fetch(ctx context.Context, url, destDir string) (string, error) {
	return New().Fetch(ctx, url, destDir)
}

// Fetch downloads url to destDir/<basename(url)> and returns that path. An
// existing file is never overwritten.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	log := logger.Logger()

	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDestinationNotFound, destDir)
	}
	name := path.Base(url)
	dest := filepath.Join(destDir, name)
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactAlreadyExists, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request for %s: %w", url, err)
	}
	log.Infof("downloading %s", url)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: bad status: %s", url, resp.Status)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	var w io.Writer = out
	var bar *progressbar.ProgressBar
	if f.progress != nil {
		bar = newBar(resp.ContentLength, name, f.progress)
		w = io.MultiWriter(out, bar)
	}

	n, err := io.CopyBuffer(w, onlyReader{resp.Body}, make([]byte, ChunkSize))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("writing %s: %w", dest, err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	log.Debugf("downloaded %d bytes to %s", n, dest)
	return dest, nil
}

func newBar(total int64, name string, w io.Writer) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(fmt.Sprintf("downloading %s", name)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// onlyReader hides WriterTo so CopyBuffer honors the chunk size.
type onlyReader struct{ io.Reader }
