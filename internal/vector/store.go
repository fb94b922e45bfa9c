package vector

import (
	"context"
	"errors"
	"time"
)

var ErrStoreUnavailable = errors.New("vector store unavailable")

// Record is the persisted unit: one embedded chunk. Upsert is the only
// write; re-upserting a ChunkID replaces vector, metadata and text
// wholesale (last write wins), never duplicating the id.
type Record struct {
	ChunkID    string
	Vector     []float32
	Content    string
	Title      string
	URL        string
	Source     string
	ModifiedAt time.Time
	Metadata   map[string]any
}

// Match is one query hit with its similarity score.
type Match struct {
	Record     Record
	Similarity float64
}

// Filter restricts a query to records whose fields equal the given
// values. A nil or empty filter matches everything.
type Filter map[string]string

// Stats describes corpus size and backend identity for operator surfaces.
type Stats struct {
	Records int    `json:"records"`
	Backend string `json:"backend"`
	Dim     int    `json:"dim"`
}

// Store abstracts the similarity-search backend. Both the embedded
// in-memory implementation and the networked Weaviate one satisfy the same
// semantics: idempotent upsert by ChunkID, top-k cosine query that returns
// fewer than k matches without error, and Stats for reporting.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
}

func (f Filter) matches(rec Record) bool {
	for key, want := range f {
		var got string
		switch key {
		case "source":
			got = rec.Source
		case "url":
			got = rec.URL
		case "title":
			got = rec.Title
		default:
			if v, ok := rec.Metadata[key]; ok {
				if s, ok := v.(string); ok {
					got = s
				}
			}
		}
		if got != want {
			return false
		}
	}
	return true
}
