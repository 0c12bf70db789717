// Package source lists call recordings in a time window and fetches their audio.
package source

import (
	"context"

	"github.com/okian/turnlat/internal/domain/model"
)

// Source provides recordings to analyze.
type Source interface {
	// List returns the recordings created inside w.
	List(ctx context.Context, w model.Window) ([]model.Recording, error)
	// Fetch downloads the audio at uri and returns it with its content type.
	Fetch(ctx context.Context, uri string) ([]byte, string, error)
}
