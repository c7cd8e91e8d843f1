package export

import "fmt"

// Table is one titled grid of a document; every row holds one value per column.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Document is an ordered set of tables rendered under a shared title.
type Document struct {
	Title    string
	Subtitle string
	Tables   []Table
}

func (d Document) validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("document has no tables")
	}
	for i, t := range d.Tables {
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %d has no columns", i)
		}
		for j, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("table %d row %d: %d values for %d columns", i, j, len(row), len(t.Columns))
			}
		}
	}
	return nil
}
