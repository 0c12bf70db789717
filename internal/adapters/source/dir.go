package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

var contentTypes = map[string]string{
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
}

// DirSource serves recordings from a local directory. Each *.wav or *.mp3
// file is one recording; its stem is both the recording and call ID and its
// modification time stands in for the creation time.
type DirSource struct {
	root string
	log  logger.Logger
}

// NewDir creates a directory source rooted at dir.
func NewDir(dir string, opts ...Option) (*DirSource, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, root)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &DirSource{root: root, log: o.log}
	if s.log == nil {
		s.log = logger.Get().Named("dir-source")
	}
	return s, nil
}

// List implements Source.List. Recordings are ordered by creation time, then name.
func (s *DirSource) List(ctx context.Context, w model.Window) ([]model.Recording, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []model.Recording
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := contentTypes[ext]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.log.Warn(ctx, "cannot stat recording", logger.String("file", e.Name()), logger.Error(err))
			continue
		}
		if !w.Contains(info.ModTime()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		out = append(out, model.Recording{
			ID:        stem,
			CallID:    stem,
			CreatedAt: info.ModTime(),
			FetchURI:  filepath.Join(s.root, e.Name()),
			Format:    strings.TrimPrefix(ext, "."),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	s.log.Info(ctx, "recordings listed", logger.String("dir", s.root), logger.Int("count", len(out)))
	return out, nil
}

// Fetch implements Source.Fetch for paths inside the source directory.
func (s *DirSource) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := filepath.Abs(uri)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, "", fmt.Errorf("%w: %s", ErrOutsideRoot, uri)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, contentTypes[strings.ToLower(filepath.Ext(path))], nil
}
