package cohort

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"normative/internal/blob"
)

// ImageIDColumn is the single column of ID filter files.
const ImageIDColumn = "Image_ID"

// ReadIDs loads an ID filter file, preserving file order and dropping
// repeated IDs.
func ReadIDs(ctx context.Context, store blob.Store, key string) ([]string, error) {
	t, err := readTable(ctx, store, key, ',')
	if err != nil {
		return nil, err
	}
	cols, err := t.require(ImageIDColumn)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(t.rows))
	ids := make([]string, 0, len(t.rows))
	for i := range t.rows {
		id := t.str(i, cols[0])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// WriteIDs stores ids as a single Image_ID column, replacing key.
func WriteIDs(ctx context.Context, store blob.Store, key string, ids []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{ImageIDColumn}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.Write([]string{id}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if _, err := blob.PutBytes(ctx, store, key, buf.Bytes(), "text/csv"); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
