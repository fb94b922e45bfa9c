package record

// Merge combines batches of canonical records into one duplicate-free
// sequence. Batches are processed in the order given (caller-specified
// priority). For any ID the surviving record is the one with the latest
// ModifiedAt; ties fall to the higher Revision, then to the record seen
// last in input order. Survivors keep first-appearance order, so merging
// a merged output with itself is a no-op.
//
// Whole records win or lose; fields are never merged across revisions.
func Merge(batches ...[]CanonicalRecord) []CanonicalRecord {
	pos := make(map[string]int)
	var out []CanonicalRecord

	for _, batch := range batches {
		for _, rec := range batch {
			i, seen := pos[rec.ID]
			if !seen {
				pos[rec.ID] = len(out)
				out = append(out, rec)
				continue
			}
			if supersedes(rec, out[i]) {
				out[i] = rec
			}
		}
	}

	return out
}

func supersedes(candidate, incumbent CanonicalRecord) bool {
	if candidate.ModifiedAt.After(incumbent.ModifiedAt) {
		return true
	}
	if candidate.ModifiedAt.Before(incumbent.ModifiedAt) {
		return false
	}
	// Equal timestamps: higher revision, then last-seen wins.
	return candidate.Revision >= incumbent.Revision
}
