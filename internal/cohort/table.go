package cohort

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"normative/internal/blob"
)

// table is a delimited file read into memory with a header index.
type table struct {
	key    string
	header map[string]int
	rows   [][]string
	lines  []int
}

func readTable(ctx context.Context, store blob.Store, key string, comma rune) (*table, error) {
	b, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", key)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	t := &table{key: key, header: make(map[string]int, len(head))}
	for i, h := range head {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := t.header[h]; !dup {
			t.header[h] = i
		}
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ := r.FieldPos(0)
		if len(rec) != len(head) {
			return nil, fmt.Errorf("%s:%d: expected %d fields, got %d", key, line, len(head), len(rec))
		}
		t.rows = append(t.rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// require returns the column indexes of names, failing on the first missing one.
func (t *table) require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := t.header[n]
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", t.key, n)
		}
		idx[i] = j
	}
	return idx, nil
}

func (t *table) float(row, col int, name string) (float64, error) {
	raw := strings.TrimSpace(t.rows[row][col])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: invalid number %q", t.key, t.lines[row], name, raw)
	}
	return v, nil
}

// code parses integral categorical values that may be written as "1" or "1.0".
func (t *table) code(row, col int, name string) (int, error) {
	v, err := t.float(row, col, name)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, fmt.Errorf("%s:%d: column %s: %v is not an integer code", t.key, t.lines[row], name, v)
	}
	return int(v), nil
}

func (t *table) str(row, col int) string { return strings.TrimSpace(t.rows[row][col]) }
