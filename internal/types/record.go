package types

import (
	"strconv"
)

// Row is one movie in the result table.
type Row struct {
	ID   int    `json:"movie_id" bson:"movie_id"`
	Rank string `json:"rank"     bson:"rank"`
	Name string `json:"name"     bson:"name"`
	Year int    `json:"year"     bson:"year"`
}

// Columns are the result table column names in output order.
var Columns = []string{"movie_id", "rank", "name", "year"}

// Strings returns the row in Columns order.
func (r Row) Strings() []string {
	return []string{strconv.Itoa(r.ID), r.Rank, r.Name, strconv.Itoa(r.Year)}
}

// RecordSet holds the row-aligned rank and name columns of one year.
type RecordSet struct {
	Year  int
	Rows  []Row
	Ranks int // length of the rank column before zipping
	Names int // length of the name column before zipping

	// Excluded counts name candidates removed by the exclusion rule.
	Excluded int
}

// Truncated returns how many cells were dropped when zipping the columns.
func (rs *RecordSet) Truncated() int {
	if rs.Ranks > rs.Names {
		return rs.Ranks - rs.Names
	}
	return rs.Names - rs.Ranks
}

// Mismatch returns a ColumnMismatchError if the columns differ in length.
func (rs *RecordSet) Mismatch() error {
	if rs.Ranks == rs.Names {
		return nil
	}
	return &ColumnMismatchError{Year: rs.Year, Ranks: rs.Ranks, Names: rs.Names}
}

// NewRecordSet zips the two columns by position and stamps every row with year.
// The result has the length of the shorter column.
func NewRecordSet(year int, ranks, names []string) *RecordSet {
	n := min(len(ranks), len(names))
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{Rank: ranks[i], Name: names[i], Year: year}
	}
	return &RecordSet{
		Year:  year,
		Rows:  rows,
		Ranks: len(ranks),
		Names: len(names),
	}
}

// Table is the ordered concatenation of all record sets of a harvest.
type Table struct {
	Rows  []Row
	Years []int
}

// Append adds a year's rows to the end of the table.
func (t *Table) Append(rs *RecordSet) {
	t.Rows = append(t.Rows, rs.Rows...)
	t.Years = append(t.Years, rs.Year)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Reindex assigns every row its zero-based position as ID.
func (t *Table) Reindex() {
	for i := range t.Rows {
		t.Rows[i].ID = i
	}
}
