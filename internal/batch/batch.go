// Package batch splits identifier lists into bounded chunks so that a single
// statement never carries more parameters than the store accepts.
package batch

import (
	"context"
	"fmt"
	"slices"
)

// Partition splits items into consecutive chunks of at most maxSize elements.
// Concatenating the chunks in order yields items exactly. An empty input
// yields no chunks at all, never a single empty chunk.
//
// Chunks share the backing array of items. Each chunk is capacity-clipped so
// appending to one cannot overwrite its neighbour.
//
// Partition panics if maxSize is not positive.
func Partition[T any](items []T, maxSize int) [][]T {
	if maxSize <= 0 {
		panic(fmt.Sprintf("batch: partition size must be positive, got %d", maxSize))
	}
	if len(items) == 0 {
		return nil
	}
	n := len(items) / maxSize
	if len(items)%maxSize != 0 {
		n++
	}
	chunks := make([][]T, 0, n)
	for chunk := range slices.Chunk(items, maxSize) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ExecuteLargeInputs partitions items and applies fn to every chunk in order,
// concatenating what fn returns. It stops at the first error, returning the
// results accumulated so far alongside it.
//
// fn is never called for an empty input.
func ExecuteLargeInputs[T, R any](ctx context.Context, items []T, maxSize int, fn func(context.Context, []T) ([]R, error)) ([]R, error) {
	chunks := Partition(items, maxSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	var results []R
	for _, chunk := range chunks {
		out, err := fn(ctx, chunk)
		if err != nil {
			return results, err
		}
		results = append(results, out...)
	}
	return results, nil
}
