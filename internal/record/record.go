package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedRecord = errors.New("malformed record")

// CanonicalRecord is the schema-normalized form of a captured item. After
// normalization it is never mutated; a later revision with the same ID
// supersedes it during merge.
type CanonicalRecord struct {
	ID         string
	ParentID   string
	Title      string
	URL        string
	Author     string
	Source     string
	Content    string
	ModifiedAt time.Time
	Revision   int64
	Metadata   map[string]any
}

// fieldMap lists the accepted field names for each canonical field, in
// lookup priority order. Different capture sources name the same thing
// differently (ingested_at vs created_utc, text vs content).
type fieldMap struct {
	content  []string
	modified []string
	parent   []string
	title    []string
	url      []string
	author   []string
}

var defaultFields = fieldMap{
	content:  []string{"content", "text", "body"},
	modified: []string{"modified_at", "ingested_at", "updated_at", "created_utc"},
	parent:   []string{"parent_id"},
	title:    []string{"title"},
	url:      []string{"url", "permalink"},
	author:   []string{"author"},
}

// sourceAdapters maps a source type to its field adapter. Sources not
// listed here fall back to the default aliases.
var sourceAdapters = map[string]fieldMap{
	"forum": {
		content:  []string{"text", "body", "selftext", "content"},
		modified: []string{"ingested_at", "created_utc", "modified_at"},
		parent:   []string{"parent_id"},
		title:    []string{"title"},
		url:      []string{"url", "permalink"},
		author:   []string{"author"},
	},
	"web": {
		content:  []string{"text", "content"},
		modified: []string{"ingested_at", "modified_at", "last_modified"},
		title:    []string{"title"},
		url:      []string{"url"},
		author:   []string{"author"},
	},
	"tabular": {
		content:  []string{"content", "text", "summary"},
		modified: []string{"modified_at", "updated_at", "semester_end"},
		title:    []string{"title", "course_code"},
		url:      []string{"url"},
	},
}

// Normalize maps one raw captured item into a CanonicalRecord. Missing id,
// missing content, or an unparseable timestamp fail with ErrMalformedRecord;
// callers count and drop, they never abort the batch. Fields not claimed by
// the adapter are preserved as opaque metadata.
func Normalize(raw map[string]any, source string) (CanonicalRecord, error) {
	fields, ok := sourceAdapters[source]
	if !ok {
		fields = defaultFields
	}

	id := asString(raw["id"])
	if id == "" {
		return CanonicalRecord{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}

	content := firstString(raw, fields.content)
	if strings.TrimSpace(content) == "" {
		return CanonicalRecord{}, fmt.Errorf("%w: missing content for id %s", ErrMalformedRecord, id)
	}

	modRaw, modKey := firstValue(raw, fields.modified)
	if modRaw == nil {
		return CanonicalRecord{}, fmt.Errorf("%w: missing timestamp for id %s", ErrMalformedRecord, id)
	}
	modifiedAt, err := parseTimestamp(modRaw)
	if err != nil {
		return CanonicalRecord{}, fmt.Errorf("%w: bad timestamp for id %s: %v", ErrMalformedRecord, id, err)
	}

	rec := CanonicalRecord{
		ID:         id,
		ParentID:   cleanParentID(firstString(raw, fields.parent)),
		Title:      firstString(raw, fields.title),
		URL:        firstString(raw, fields.url),
		Author:     firstString(raw, fields.author),
		Source:     source,
		Content:    content,
		ModifiedAt: modifiedAt,
		Revision:   asInt64(raw["revision"]),
		Metadata:   map[string]any{},
	}

	claimed := map[string]bool{"id": true, "revision": true, modKey: true}
	for _, keys := range [][]string{fields.content, fields.parent, fields.title, fields.url, fields.author} {
		for _, k := range keys {
			claimed[k] = true
		}
	}
	for k, v := range raw {
		if claimed[k] {
			continue
		}
		// Nested metadata objects are flattened one level so they survive
		// as filterable scalar fields downstream.
		if nested, ok := v.(map[string]any); ok && k == "metadata" {
			for nk, nv := range nested {
				rec.Metadata[nk] = nv
			}
			continue
		}
		rec.Metadata[k] = v
	}

	return rec, nil
}

// cleanParentID strips forum-specific thing prefixes (t1_ comment, t3_
// submission) so parent links resolve against plain record ids.
func cleanParentID(id string) string {
	id = strings.TrimPrefix(id, "t1_")
	return strings.TrimPrefix(id, "t3_")
}

func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, nil
			}
		}
		if epoch, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Unix(int64(epoch), 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", t)
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func firstString(raw map[string]any, keys []string) string {
	v, _ := firstValue(raw, keys)
	return asString(v)
}

func firstValue(raw map[string]any, keys []string) (any, string) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, k
		}
	}
	return nil, ""
}
