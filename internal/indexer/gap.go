package indexer

// MissingBlocks returns the block numbers in [start, tip) that are not
// members of indexed, in ascending order.
func MissingBlocks(start, tip int64, indexed map[int64]struct{}) []int64 {
	if tip <= start {
		return nil
	}

	capacity := int(tip-start) - len(indexed)
	if capacity < 0 {
		capacity = 0
	}
	missing := make([]int64, 0, capacity)
	for n := start; n < tip; n++ {
		if _, ok := indexed[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// PartitionSlices splits numbers into n contiguous, near-equal slices,
// one per provider. Any remainder lands on the leading partitions.
func PartitionSlices(numbers []int64, n int) [][]int64 {
	if n <= 0 || len(numbers) == 0 {
		return nil
	}
	if n > len(numbers) {
		n = len(numbers)
	}

	size := len(numbers) / n
	rem := len(numbers) % n

	slices := make([][]int64, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		slices = append(slices, numbers[start:end])
		start = end
	}
	return slices
}

// ChunkNumbers splits numbers into consecutive chunks of at most size.
func ChunkNumbers(numbers []int64, size int) [][]int64 {
	if size <= 0 || len(numbers) == 0 {
		return nil
	}

	chunks := make([][]int64, 0, len(numbers)/size+1)
	for start := 0; start < len(numbers); start += size {
		end := start + size
		if end > len(numbers) {
			end = len(numbers)
		}
		chunks = append(chunks, numbers[start:end])
	}
	return chunks
}
