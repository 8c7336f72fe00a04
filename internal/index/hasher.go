package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
)

const (
	// hashChunkSize is the read size while hashing a remote file.
	hashChunkSize = 8192
	// DefaultHashAttempts is how often a remote hash is tried.
	DefaultHashAttempts = 3
)

// RemoteHasher computes the sha256 of files it downloads.
type RemoteHasher struct {
	Source   ReleaseSource
	Attempts int
	// Progress receives a progress bar per download; nil disables it.
	Progress io.Writer
}

// SHA256 downloads url and returns its hex digest. Connection failures are
// retried immediately up to Attempts times; HTTP status errors are not.
func (h *RemoteHasher) SHA256(ctx context.Context, url string) (string, error) {
	log := logger.Logger()
	attempts := h.Attempts
	if attempts <= 0 {
		attempts = DefaultHashAttempts
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var sum string
		sum, err = h.hashOnce(ctx, url)
		if err == nil {
			return sum, nil
		}
		if !isTransient(err) {
			return "", err
		}
		log.Warnf("attempt %d of %d to hash %s failed: %v", i, attempts, redactURL(url), err)
	}
	return "", fmt.Errorf("hashing %s after %d attempts: %w", redactURL(url), attempts, err)
}

func (h *RemoteHasher) hashOnce(ctx context.Context, url string) (string, error) {
	body, size, err := h.Source.Download(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	logger.Logger().Infof("downloading and hashing %s", path.Base(url))
	sum := sha256.New()
	var w io.Writer = sum
	var bar *progressbar.ProgressBar
	if h.Progress != nil {
		if size <= 0 {
			size = -1
		}
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(h.Progress),
			progressbar.OptionSetDescription(path.Base(url)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		w = io.MultiWriter(sum, bar)
	}

	if _, err := io.CopyBuffer(w, struct{ io.Reader }{body}, make([]byte, hashChunkSize)); err != nil {
		return "", fmt.Errorf("reading %s: %w", redactURL(url), err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// isTransient reports whether err is a connection-level failure worth
// retrying.
func isTransient(err error) bool {
	var se *StatusError
	var rl *RateLimitError
	switch {
	case errors.As(err, &se), errors.As(err, &rl):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
