// Package plan partitions a resource of known size into the byte-range
// segments handed to the fetch workers.
package plan

import "fmt"

// Segment is a contiguous inclusive byte range, 1-indexed.
type Segment struct {
	Index int
	Start int64
	End   int64
}

// Length returns the number of bytes the segment covers.
func (s Segment) Length() int64 {
	return s.End - s.Start + 1
}

// PartPath returns the on-disk file holding this segment's bytes.
func (s Segment) PartPath(outputPath string) string {
	return PartPath(outputPath, s.Index)
}

func PartPath(outputPath string, index int) string {
	return fmt.Sprintf("%s.p%d", outputPath, index)
}

// Plan is a deterministic partition of [0, Size) into segments.
type Plan struct {
	Size      int64
	ChunkSize int64
	Workers   int
	Segments  []Segment
}

// Build computes the segment layout. A positive chunkSizeMB fixes the
// chunk size and caps the effective worker count at the segment count;
// otherwise the segment count equals the worker count and the chunk
// size is derived. The last segment is clamped to size-1.
func Build(size int64, workers, chunkSizeMB int) Plan {
	var numParts int
	var chunkSize int64
	workersEff := workers
	if chunkSizeMB > 0 {
		chunkSize = int64(chunkSizeMB) * 1024 * 1024
		numParts = int((size + chunkSize - 1) / chunkSize)
		if workersEff > numParts {
			workersEff = numParts
		}
	} else {
		numParts = max(1, workers)
		chunkSize = (size + int64(numParts) - 1) / int64(numParts)
		workersEff = numParts
	}

	p := Plan{
		Size:      size,
		ChunkSize: chunkSize,
		Workers:   workersEff,
		Segments:  make([]Segment, 0, numParts),
	}
	var start int64
	for i := 1; i <= numParts && start < size; i++ {
		end := start + chunkSize - 1
		if end > size-1 {
			end = size - 1
		}
		p.Segments = append(p.Segments, Segment{Index: i, Start: start, End: end})
		start = end + 1
	}
	if p.Workers > len(p.Segments) {
		p.Workers = len(p.Segments)
	}
	return p
}
