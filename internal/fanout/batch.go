package fanout

// Partition splits tokens into contiguous batches of at most size entries.
// An empty input yields no batches.
func Partition(tokens []string, size int) [][]string {
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	batches := make([][]string, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		batches = append(batches, tokens[start:end:end])
	}
	return batches
}
