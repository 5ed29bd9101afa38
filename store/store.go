// Package store persists prediction records for users. The pipeline never
// touches it; the server hands finished results to a Recorder.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRecord is returned by Save for records missing a user.
var ErrInvalidRecord = errors.New("store: record requires a user id")

// DefaultLimit is the page size used when a query leaves Limit unset.
const DefaultLimit = 20

// Record is one saved prediction.
type Record struct {
	ID         string    `msgpack:"id" json:"id"`
	UserID     string    `msgpack:"user_id" json:"user_id"`
	Email      string    `msgpack:"email" json:"email"`
	Emotion    string    `msgpack:"emotion" json:"emotion"`
	Confidence *float64  `msgpack:"confidence,omitempty" json:"confidence,omitempty"`
	Samples    []float64 `msgpack:"audio_data,omitempty" json:"audio_data,omitempty"`
	Timestamp  float64   `msgpack:"timestamp" json:"timestamp"` // unix seconds supplied by the client
	Notes      string    `msgpack:"notes,omitempty" json:"notes,omitempty"`
	VideoURL   string    `msgpack:"youtube_url,omitempty" json:"youtube_url,omitempty"`
	CreatedAt  time.Time `msgpack:"created_at" json:"created_at"`
}

// Query selects a user's records, oldest first.
type Query struct {
	UserID     string
	Skip       int
	Limit      int  // <= 0 means DefaultLimit
	RemoteOnly bool // only records with a VideoURL
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

func (q Query) matches(r *Record) bool {
	if r.UserID != q.UserID {
		return false
	}
	return !q.RemoteOnly || r.VideoURL != ""
}

// Recorder saves and lists records.
type Recorder interface {
	// Save assigns ID and CreatedAt when empty and returns the ID.
	Save(ctx context.Context, rec *Record) (string, error)
	List(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
