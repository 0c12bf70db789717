package testclips

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/turnlat/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o640
	// ManifestName is the ground-truth file written next to the clips.
	ManifestName = "manifest.json"
)

// WriteOptions controls how generated clips land on disk.
type WriteOptions struct {
	Workers int
	// BaseTime is the modification time of the first clip; each following clip
	// is Spacing later. A zero BaseTime leaves mod times untouched.
	BaseTime time.Time
	Spacing  time.Duration
}

// ManifestEntry is one clip in the manifest.
type ManifestEntry struct {
	File      string         `json:"file"`
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Expected  []ExpectedTurn `json:"expected"`
}

// WriteDir encodes every spec as <id>.wav under dir and writes a manifest with
// the expected turn timings.
func WriteDir(ctx context.Context, dir string, specs []Spec, opts WriteOptions) ([]ManifestEntry, error) {
	log := logger.Get().Named("testclips")
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	entries := make([]ManifestEntry, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := writeClip(dir, specs[i], opts.modTime(i))
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), manifest, filePermission); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	log.Info(ctx, "clips written",
		logger.String("dir", dir),
		logger.Int("count", len(entries)))
	return entries, nil
}

func (o WriteOptions) modTime(i int) time.Time {
	if o.BaseTime.IsZero() {
		return time.Time{}
	}
	return o.BaseTime.Add(time.Duration(i) * o.Spacing)
}

func writeClip(dir string, spec Spec, modTime time.Time) (ManifestEntry, error) {
	name := spec.ID + ".wav"
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermission)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("create %s: %w", name, err)
	}
	if err := spec.Clip.WriteWAV(f); err != nil {
		_ = f.Close()
		return ManifestEntry{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return ManifestEntry{}, fmt.Errorf("close %s: %w", name, err)
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			return ManifestEntry{}, fmt.Errorf("set mod time on %s: %w", name, err)
		}
	}
	return ManifestEntry{File: name, ID: spec.ID, CreatedAt: modTime, Expected: spec.Expected}, nil
}
