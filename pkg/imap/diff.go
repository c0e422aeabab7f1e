package imap

import "strings"

// RowDiff lists rows present on only one side. Rows are compared on the
// required fields.
type RowDiff struct {
	Added   []Row
	Removed []Row
}

func (d *RowDiff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Diff compares a with b; Added holds rows of b missing from a.
func Diff(a, b *Imap) *RowDiff {
	ak, bk := index(a), index(b)
	d := &RowDiff{}
	for _, row := range b.Rows {
		if _, ok := ak[rowKey(row)]; !ok {
			d.Added = append(d.Added, row)
		}
	}
	for _, row := range a.Rows {
		if _, ok := bk[rowKey(row)]; !ok {
			d.Removed = append(d.Removed, row)
		}
	}
	return d
}

func index(m *Imap) map[string]struct{} {
	out := make(map[string]struct{}, len(m.Rows))
	for _, row := range m.Rows {
		out[rowKey(row)] = struct{}{}
	}
	return out
}

func rowKey(r Row) string {
	vals := make([]string, len(FieldNames))
	for i, f := range FieldNames {
		vals[i] = r[f]
	}
	return strings.Join(vals, "\x1f")
}
