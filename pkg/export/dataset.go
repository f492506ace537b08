package export

import "fmt"

// Dataset defines tabular export content. Summary lines are appended after
// the table as label/value pairs.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	Summary [][2]string
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Headers))
		}
	}
	return nil
}
