package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// Batch is one capture file's worth of normalized records plus the count
// of malformed lines that were dropped along the way.
type Batch struct {
	Records []CanonicalRecord
	Dropped int
}

const maxLineBytes = 4 << 20

// ReadBatch parses a JSONL capture stream, normalizing each line. Lines
// that fail to parse or normalize are counted and skipped, including
// lines over the size cap; only a real read failure aborts.
func ReadBatch(r io.Reader, source string) (Batch, error) {
	var batch Batch

	reader := bufio.NewReaderSize(r, 64*1024)

	line := 0
	for {
		raw, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			line++
			slog.Warn("skipping oversized line", "source", source, "line", line, "max_bytes", maxLineBytes)
			batch.Dropped++
			if errors.Is(err, io.EOF) {
				return batch, nil
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return batch, err
		}
		done := errors.Is(err, io.EOF)

		if len(raw) > 0 {
			line++
			if rec, ok := parseLine(raw, source, line); ok {
				batch.Records = append(batch.Records, rec)
			} else {
				batch.Dropped++
			}
		}

		if done {
			return batch, nil
		}
	}
}

var errLineTooLong = errors.New("line exceeds size cap")

// readLine returns the next line without its terminator. A line over
// maxLineBytes is drained to its newline and reported as errLineTooLong
// so the caller can drop it and keep reading.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		buf = append(buf, chunk...)

		if err == nil || errors.Is(err, io.EOF) {
			if len(buf) > maxLineBytes {
				return nil, drainError(err)
			}
			return bytes.TrimRight(buf, "\r\n"), err
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(buf) > maxLineBytes {
				return nil, drainLine(reader)
			}
			continue
		}
		return nil, err
	}
}

// drainLine consumes the rest of an oversized line so the reader is
// positioned at the next record.
func drainLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if err == nil || errors.Is(err, io.EOF) {
			return drainError(err)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func drainError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.Join(errLineTooLong, io.EOF)
	}
	return errLineTooLong
}

func parseLine(raw []byte, source string, line int) (CanonicalRecord, bool) {
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		slog.Warn("skipping unparseable line", "source", source, "line", line, "error", err)
		return CanonicalRecord{}, false
	}

	rec, err := Normalize(item, source)
	if err != nil {
		slog.Warn("skipping malformed record", "source", source, "line", line, "error", err)
		return CanonicalRecord{}, false
	}
	return rec, true
}
