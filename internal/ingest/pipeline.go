package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"campusrag/internal/embed"
	"campusrag/internal/record"
	"campusrag/internal/text"
	"campusrag/internal/vector"
)

// Input is one capture stream to ingest. Source selects the field
// mapping used during normalization; Name is only for logging.
type Input struct {
	Name   string
	Source string
	Reader io.Reader
}

// RunReport summarizes one ingestion run. Published to NSQ after each
// run so downstream tooling can track corpus freshness.
type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	Inputs     int       `json:"inputs"`
	Records    int       `json:"records"`
	Dropped    int       `json:"dropped"`
	Superseded int       `json:"superseded"`
	Chunks     int       `json:"chunks"`
	Embedded   int       `json:"embedded"`
	Failed     int       `json:"failed"`
}

// Pipeline runs the full ingestion path: parse and normalize capture
// files, merge duplicates, chunk, embed in parallel, and upsert into the
// vector store. Embedding failures skip individual chunks; only a store
// failure aborts the run.
type Pipeline struct {
	chunker    *text.Chunker
	dispatcher *embed.Dispatcher
	store      vector.Store
	notifier   *Notifier
}

func NewPipeline(chunker *text.Chunker, dispatcher *embed.Dispatcher, store vector.Store, notifier *Notifier) *Pipeline {
	return &Pipeline{
		chunker:    chunker,
		dispatcher: dispatcher,
		store:      store,
		notifier:   notifier,
	}
}

func (p *Pipeline) Run(ctx context.Context, inputs []Input) (RunReport, error) {
	start := time.Now()
	report := RunReport{StartedAt: start, Inputs: len(inputs)}

	batches := make([][]record.CanonicalRecord, 0, len(inputs))
	total := 0
	for _, in := range inputs {
		batch, err := record.ReadBatch(in.Reader, in.Source)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", in.Name, err)
		}
		slog.InfoContext(ctx, "parsed capture", "input", in.Name, "source", in.Source,
			"records", len(batch.Records), "dropped", batch.Dropped)
		report.Dropped += batch.Dropped
		total += len(batch.Records)
		batches = append(batches, batch.Records)
	}

	merged := record.Merge(batches...)
	report.Records = len(merged)
	report.Superseded = total - len(merged)

	chunks := p.chunker.ChunkAll(merged)
	report.Chunks = len(chunks)

	result := p.dispatcher.Run(ctx, chunks)
	report.Embedded = result.Embedded()
	report.Failed = result.Failed()

	for _, chunk := range chunks {
		vec, ok := result.Vectors[chunk.ID]
		if !ok {
			continue
		}
		rec := vector.Record{
			ChunkID:    chunk.ID,
			Vector:     vec,
			Content:    chunk.Content,
			Title:      chunk.Title,
			URL:        chunk.URL,
			Source:     chunk.Source,
			ModifiedAt: chunk.ModifiedAt,
			Metadata:   chunk.Metadata,
		}
		if err := p.store.Upsert(ctx, rec); err != nil {
			return report, fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	report.Duration = time.Since(start).String()
	slog.InfoContext(ctx, "ingestion run complete",
		"records", report.Records, "chunks", report.Chunks,
		"embedded", report.Embedded, "failed", report.Failed,
		"duration", report.Duration)

	if p.notifier != nil {
		if err := p.notifier.PublishReport(ctx, report); err != nil {
			// Reporting is advisory, never fail a completed run over it.
			slog.WarnContext(ctx, "failed to publish run report", "error", err)
		}
	}

	return report, nil
}

// RunFiles opens each path and runs the pipeline over the resulting
// inputs. Later files win ties during merge, so callers list them in
// ascending priority.
func (p *Pipeline) RunFiles(ctx context.Context, paths []string, source string) (RunReport, error) {
	inputs := make([]Input, 0, len(paths))
	closers := make([]io.Closer, 0, len(paths))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	for _, path := range paths {
		f, err := os.Open(path) // #nosec G304 -- paths come from the operator's command line
		if err != nil {
			return RunReport{}, fmt.Errorf("open %s: %w", path, err)
		}
		closers = append(closers, f)
		inputs = append(inputs, Input{Name: path, Source: source, Reader: f})
	}

	return p.Run(ctx, inputs)
}
