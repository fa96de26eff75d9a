package export

// Table is an ordered tabular export payload.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (t Table) cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
