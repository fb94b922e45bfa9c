package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateStore is the networked backend. Object ids are derived
// deterministically from the chunk id, so a batch re-upsert replaces the
// prior object instead of duplicating it.
type WeaviateStore struct {
	client    *weaviate.Client
	className string
	dim       int
}

func NewWeaviateStore(client *weaviate.Client, className string, dim int) *WeaviateStore {
	return &WeaviateStore{client: client, className: className, dim: dim}
}

// objectID maps a chunk id onto a stable UUID; Weaviate PUTs by id, which
// gives us last-write-wins upsert semantics for free.
func objectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

func (s *WeaviateStore) Upsert(ctx context.Context, rec Record) error {
	props := map[string]any{
		"chunkId":    rec.ChunkID,
		"content":    rec.Content,
		"title":      rec.Title,
		"url":        rec.URL,
		"source":     rec.Source,
		"modifiedAt": rec.ModifiedAt.Format(time.RFC3339),
	}
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err == nil {
			props["metadata"] = string(raw)
		}
	}

	obj := &models.Object{
		ID:         objectID(rec.ChunkID),
		Class:      s.className,
		Properties: props,
		Vector:     rec.Vector,
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("upsert %s: %s", rec.ChunkID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *WeaviateStore) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "content"},
		{Name: "title"},
		{Name: "url"},
		{Name: "source"},
		{Name: "modifiedAt"},
		{Name: "metadata"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)

	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var matches []Match
	data, ok := res.Data["Get"].(map[string]any)
	if !ok {
		return matches, nil
	}
	objects, _ := data[s.className].([]any)
	for _, o := range objects {
		props, ok := o.(map[string]any)
		if !ok {
			continue
		}
		rec := recordFromProps(props)
		similarity := 0.0
		if additional, ok := props["_additional"].(map[string]any); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Weaviate reports cosine distance; similarity is its
				// complement.
				similarity = 1 - distance
			}
		}
		if !filter.matches(rec) {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: similarity})
	}

	return matches, nil
}

func (s *WeaviateStore) Stats(ctx context.Context) (Stats, error) {
	meta := graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(meta).
		Do(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return Stats{}, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	stats := Stats{Backend: "weaviate", Dim: s.dim}
	if agg, ok := res.Data["Aggregate"].(map[string]any); ok {
		if rows, ok := agg[s.className].([]any); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]any); ok {
				if meta, ok := row["meta"].(map[string]any); ok {
					if count, ok := meta["count"].(float64); ok {
						stats.Records = int(count)
					}
				}
			}
		}
	}
	return stats, nil
}

// buildWhere pushes the known schema properties down to Weaviate; any
// remaining filter keys are applied client-side after retrieval.
func buildWhere(filter Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	for _, key := range []string{"source", "url", "title"} {
		if v, ok := filter[key]; ok {
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.Equal).
				WithValueString(v))
		}
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func recordFromProps(props map[string]any) Record {
	rec := Record{}
	if v, ok := props["chunkId"].(string); ok {
		rec.ChunkID = v
	}
	if v, ok := props["content"].(string); ok {
		rec.Content = v
	}
	if v, ok := props["title"].(string); ok {
		rec.Title = v
	}
	if v, ok := props["url"].(string); ok {
		rec.URL = v
	}
	if v, ok := props["source"].(string); ok {
		rec.Source = v
	}
	if v, ok := props["modifiedAt"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			rec.ModifiedAt = ts
		}
	}
	if v, ok := props["metadata"].(string); ok && v != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(v), &meta); err == nil {
			rec.Metadata = meta
		}
	}
	return rec
}
