package index

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
)

const (
	wheelSuffix    = ".whl"
	checksumSuffix = ".sha256"
	metadataSuffix = ".metadata"

	// maxChecksumFileBytes bounds the size of a downloaded checksum side file.
	maxChecksumFileBytes = 4 << 10
)

// WheelRecord is one wheel listed on a package page.
type WheelRecord struct {
	Name           string
	URL            string
	SHA256         string
	MetadataURL    string
	MetadataSHA256 string
	RequiresPython string
}

// collector turns release assets into wheel records.
type collector struct {
	source         ReleaseSource
	hasher         *RemoteHasher
	requiresPython string
}

// wheels returns the records of every .whl asset of rel, in asset order.
func (c *collector) wheels(ctx context.Context, rel Release) ([]WheelRecord, error) {
	log := logger.Logger()

	byName := make(map[string]Asset, len(rel.Assets))
	for _, a := range rel.Assets {
		byName[a.Name] = a
	}

	var records []WheelRecord
	for _, wheel := range rel.Assets {
		if !strings.HasSuffix(wheel.Name, wheelSuffix) {
			continue
		}
		log.Infof("found wheel %s in release %s", wheel.Name, rel.TagName)
		rec := WheelRecord{
			Name:           wheel.Name,
			URL:            wheel.BrowserDownloadURL,
			RequiresPython: c.requiresPython,
		}

		if a, ok := byName[wheel.Name+checksumSuffix]; ok {
			text, err := c.readSmall(ctx, a.BrowserDownloadURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warnf("could not read %s: %v", a.Name, err)
			} else if sum, err := ParseChecksumFile(text, wheel.Name); err != nil {
				log.Warnf("ignoring %s: %v", a.Name, err)
			} else {
				rec.SHA256 = sum
			}
		}

		if a, ok := byName[wheel.Name+metadataSuffix]; ok {
			if a.BrowserDownloadURL != wheel.BrowserDownloadURL+metadataSuffix {
				return nil, fmt.Errorf("%w:\n\twheel:    %s\n\tmetadata: %s",
					ErrMetadataURLMismatch, wheel.BrowserDownloadURL, a.BrowserDownloadURL)
			}
			rec.MetadataURL = a.BrowserDownloadURL
		}

		if a, ok := byName[wheel.Name+metadataSuffix+checksumSuffix]; ok {
			if rec.MetadataURL == "" {
				return nil, fmt.Errorf("%w: %s", ErrOrphanedMetadataChecksum, a.Name)
			}
			text, err := c.readSmall(ctx, a.BrowserDownloadURL)
			if err != nil {
				return nil, err
			}
			sum, err := ParseChecksumFile(text, "")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			rec.MetadataSHA256 = sum
		}

		if rec.MetadataURL != "" && rec.MetadataSHA256 == "" {
			log.Infof("no metadata checksum for %s, computing it", wheel.Name)
			sum, err := c.hasher.SHA256(ctx, rec.MetadataURL)
			if err != nil {
				return nil, err
			}
			rec.MetadataSHA256 = sum
		}
		if rec.SHA256 == "" {
			log.Infof("no checksum for %s, computing it", wheel.Name)
			sum, err := c.hasher.SHA256(ctx, rec.URL)
			if err != nil {
				return nil, err
			}
			rec.SHA256 = sum
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *collector) readSmall(ctx context.Context, url string) (string, error) {
	body, _, err := c.source.Download(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxChecksumFileBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", redactURL(url), err)
	}
	return string(data), nil
}
