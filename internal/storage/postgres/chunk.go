package postgres

// maxStatementParams is the postgres extended-protocol bind limit.
// Multi-row inserts are sized so rows*fields never reaches it.
const maxStatementParams = 65535

// chunkBounds splits total rows into [start, end) ranges such that
// each range binds fewer than maxStatementParams parameters. Bounds
// depend only on row count and field count, never on content.
func chunkBounds(total, fieldsPerRow int) [][2]int {
	if total <= 0 || fieldsPerRow <= 0 {
		return nil
	}

	rowsPerChunk := maxStatementParams / fieldsPerRow
	if rowsPerChunk == 0 {
		rowsPerChunk = 1
	}

	bounds := make([][2]int, 0, total/rowsPerChunk+1)
	for start := 0; start < total; start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > total {
			end = total
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
