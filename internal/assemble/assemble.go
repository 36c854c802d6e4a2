// Package assemble concatenates part files into the final artifact.
package assemble

import (
	"fmt"
	"io"
	"os"

	"splitfetch/internal/plan"
)

// IncompletePartError reports a part file whose on-disk size does not
// match its segment. Got is -1 when the file is missing entirely.
type IncompletePartError struct {
	Path string
	Got  int64
	Want int64
}

func (e *IncompletePartError) Error() string {
	if e.Got < 0 {
		return fmt.Sprintf("missing part %s", e.Path)
	}
	return fmt.Sprintf("incomplete part %s (%d/%d bytes)", e.Path, e.Got, e.Want)
}

// CheckParts verifies every part file holds exactly its segment's
// bytes. Assembly must not be attempted until this passes.
func CheckParts(segments []plan.Segment, outputPath string) error {
	for _, seg := range segments {
		partPath := seg.PartPath(outputPath)
		info, err := os.Stat(partPath)
		if err != nil {
			return &IncompletePartError{Path: partPath, Got: -1, Want: seg.Length()}
		}
		if info.Size() != seg.Length() {
			return &IncompletePartError{Path: partPath, Got: info.Size(), Want: seg.Length()}
		}
	}
	return nil
}

// Concat writes parts 1..numParts in index order into finalPath. The
// final path may equal the part files' base path; parts are separate
// files, so reading them while writing the target is safe.
func Concat(basePath string, numParts int, finalPath string, bufferSize int) error {
	destFile, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", finalPath, err)
	}
	defer destFile.Close()

	buffer := make([]byte, bufferSize)
	for i := 1; i <= numParts; i++ {
		partPath := plan.PartPath(basePath, i)
		partFile, err := os.Open(partPath)
		if err != nil {
			if os.IsNotExist(err) {
				return &IncompletePartError{Path: partPath, Got: -1}
			}
			return fmt.Errorf("error opening part file %s: %w", partPath, err)
		}
		_, err = io.CopyBuffer(destFile, partFile, buffer)
		partFile.Close()
		if err != nil {
			return fmt.Errorf("error copying part %d: %w", i, err)
		}
	}
	return nil
}
