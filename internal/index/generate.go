// Package index builds a static "simple" Python package repository from the
// wheels attached to the releases of a hosting repository.
package index

import (
	"context"
	"fmt"
	"io"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
)

// Options tunes Generate.
type Options struct {
	// ProjectName is the package the wheels belong to.
	ProjectName string
	// RequiresPython is advertised on every wheel link, e.g. ">=3.6".
	RequiresPython string
	Overwrite      bool
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
	// HashAttempts overrides DefaultHashAttempts.
	HashAttempts int
}

// Generate lists the releases of source, resolves a checksum for every wheel
// and writes the index into output.
func Generate(ctx context.Context, source ReleaseSource, output string, opts Options) ([]WheelRecord, error) {
	log := logger.Logger()

	// fail before any download when the output cannot be written
	if _, err := checkOutput(output, opts.Overwrite); err != nil {
		return nil, err
	}

	releases, err := source.ListReleases(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("found %d releases", len(releases))

	c := &collector{
		source:         source,
		hasher:         &RemoteHasher{Source: source, Attempts: opts.HashAttempts, Progress: opts.Progress},
		requiresPython: opts.RequiresPython,
	}
	var all []WheelRecord
	for _, rel := range releases {
		if rel.Draft {
			continue
		}
		wheels, err := c.wheels(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("release %s: %w", rel.TagName, err)
		}
		all = append(all, wheels...)
	}

	log.Infof("writing index of %d wheels to %s", len(all), output)
	if err := Write(output, map[string][]WheelRecord{opts.ProjectName: all}, opts.Overwrite); err != nil {
		return nil, err
	}
	return all, nil
}
