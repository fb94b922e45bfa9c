package text

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"campusrag/internal/record"
)

// Chunk is a bounded, independently embeddable span of text. Content is
// the full embeddable string (ancestor context header plus focal span);
// Focal is the span alone, so concatenating a record's focal spans minus
// overlaps reconstructs the record.
type Chunk struct {
	ID         string
	RecordID   string
	Index      int
	Content    string
	Focal      string
	Context    []string
	Title      string
	URL        string
	Author     string
	Source     string
	ModifiedAt time.Time
	Truncated  bool
	Metadata   map[string]any
}

type Chunker struct {
	maxSize      int
	overlap      int
	minSize      int
	contextDepth int
}

func NewChunker(maxSize, overlap, minSize, contextDepth int) *Chunker {
	if overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Chunker{maxSize: maxSize, overlap: overlap, minSize: minSize, contextDepth: contextDepth}
}

// contextSnippetLimit bounds each ancestor snippet so a deep thread cannot
// crowd out the focal content.
const contextSnippetLimit = 200

// ChunkAll chunks a merged batch. Thread linkage is resolved within the
// batch: a reply gets up to contextDepth ancestors prepended, root first.
func (c *Chunker) ChunkAll(records []record.CanonicalRecord) []Chunk {
	byID := make(map[string]record.CanonicalRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	var out []Chunk
	for _, r := range records {
		out = append(out, c.ChunkRecord(r, byID)...)
	}
	return out
}

// ChunkRecord splits a single record. byID may be nil for records with no
// thread linkage.
func (c *Chunker) ChunkRecord(r record.CanonicalRecord, byID map[string]record.CanonicalRecord) []Chunk {
	context := c.ancestorChain(r, byID)
	header := buildHeader(r, context)

	spans := splitSpans(r.Content, c.maxSize, c.overlap, c.minSize)

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, Chunk{
			ID:         ChunkID(r.ID, i, sp.text),
			RecordID:   r.ID,
			Index:      i,
			Content:    header + sp.text,
			Focal:      sp.text,
			Context:    context,
			Title:      r.Title,
			URL:        r.URL,
			Author:     r.Author,
			Source:     r.Source,
			ModifiedAt: r.ModifiedAt,
			Truncated:  sp.truncated,
			Metadata:   r.Metadata,
		})
	}
	return chunks
}

// ChunkID is a deterministic function of the source record, split position
// and content, so re-processing identical input produces identical ids.
func ChunkID(recordID string, index int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%d-%s", recordID, index, hex.EncodeToString(sum[:])[:12])
}

func (c *Chunker) ancestorChain(r record.CanonicalRecord, byID map[string]record.CanonicalRecord) []string {
	if byID == nil || r.ParentID == "" {
		return nil
	}

	// Walk up, nearest ancestor first, guarding against cycles.
	var chain []string
	seen := map[string]bool{r.ID: true}
	parentID := r.ParentID
	for len(chain) < c.contextDepth {
		parent, ok := byID[parentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true

		snippet := parent.Content
		if parent.Title != "" {
			snippet = parent.Title + ": " + snippet
		}
		if len(snippet) > contextSnippetLimit {
			snippet = snippet[:boundaryBefore(snippet, contextSnippetLimit)] + "..."
		}
		chain = append(chain, snippet)
		parentID = parent.ParentID
	}

	// Reverse to root-first reading order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// buildHeader renders the context header prepended to every chunk of a
// record. The "---" rule separates ancestor context from focal content.
func buildHeader(r record.CanonicalRecord, context []string) string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
	}
	if r.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", r.Source)
	}
	for _, snippet := range context {
		fmt.Fprintf(&b, "[context] %s\n", snippet)
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("---\n")
	return b.String()
}

// span is one focal slice of a record's content; truncated marks a hard
// cut through an oversized atomic unit.
type span struct {
	text      string
	truncated bool
}

// splitSpans splits content into spans of at most maxSize characters,
// preferring paragraph breaks, then sentence breaks, then whitespace.
// Consecutive spans overlap by at least overlap characters. A stretch with
// no whitespace at all (one giant token) is cut hard at maxSize and marked
// truncated; content after it still gets its own spans.
func splitSpans(content string, maxSize, overlap, minSize int) []span {
	if len(content) <= maxSize {
		return []span{{text: content}}
	}

	var spans []span
	start := 0
	for start < len(content) {
		end := start + maxSize
		if end >= len(content) {
			spans = append(spans, span{text: content[start:]})
			break
		}

		cut := findBoundary(content, start, end)
		if cut <= start {
			// Atomic oversized unit: cut hard at maxSize, aligned back to
			// a rune start so the slice stays valid UTF-8, and keep going
			// with the remainder.
			hard := end
			for hard > start && !utf8.RuneStart(content[hard]) {
				hard--
			}
			if hard == start {
				hard = end
			}
			spans = append(spans, span{text: content[start:hard], truncated: true})
			start = hard
			continue
		}

		// Absorb a tail too small to stand alone.
		if len(content)-cut < minSize && cut-start+(len(content)-cut) <= maxSize {
			spans = append(spans, span{text: content[start:]})
			break
		}

		spans = append(spans, span{text: content[start:cut]})
		next := cut - overlap
		for next > start && next < len(content) && !utf8.RuneStart(content[next]) {
			next++
		}
		if next <= start {
			next = cut
		}
		start = next
	}

	return spans
}

// findBoundary returns the best split position in (start, end], searching
// backwards from end: paragraph break, then sentence end, then whitespace.
func findBoundary(content string, start, end int) int {
	window := content[start:end]

	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return start + i + 2
	}

	for i := len(window) - 1; i > 0; i-- {
		ch := window[i]
		if (ch == '.' || ch == '!' || ch == '?') && i+1 < len(window) && isSpaceByte(window[i+1]) {
			return start + i + 1
		}
	}

	for i := len(window) - 1; i > 0; i-- {
		if isSpaceByte(window[i]) {
			return start + i + 1
		}
	}

	return start
}

// boundaryBefore finds the last whitespace at or before limit, so snippet
// truncation never cuts a token in half.
func boundaryBefore(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	for i := limit; i > 0; i-- {
		if isSpaceByte(s[i]) {
			return i
		}
	}
	return limit
}

// isSpaceByte deliberately covers ASCII whitespace only: bytes 0x85 and
// 0xA0 are UTF-8 continuation bytes, and treating them as whitespace
// would cut inside a multi-byte rune.
func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
