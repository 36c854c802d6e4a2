// Package verify checks the assembled file against the expected size
// and, when requested, a cryptographic digest.
package verify

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// SizeMismatchError means the assembled file is the wrong length. It
// is distinct from a digest mismatch so callers can tell a broken
// assembly from changed content.
type SizeMismatchError struct {
	Path string
	Got  int64
	Want int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: assembled %d vs expected %d", e.Path, e.Got, e.Want)
}

// ChecksumMismatchError means the file's computed digest differs from
// the expected one.
type ChecksumMismatchError struct {
	Algo string
	Got  string
	Want string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: got %s, expected %s", e.Algo, e.Got, e.Want)
}

type checksumAlgo struct {
	HexLen  int
	NewHash func() hash.Hash
}

var supportedChecksums = map[string]checksumAlgo{
	"md5":    {HexLen: 32, NewHash: md5.New},
	"sha1":   {HexLen: 40, NewHash: sha1.New},
	"sha256": {HexLen: 64, NewHash: sha256.New},
	"sha512": {HexLen: 128, NewHash: sha512.New},
}

// ValidateExpected rejects an expected digest that can never match:
// unknown algorithm, wrong length for the algorithm, or non-hex
// characters. Callers run this before fetching anything.
func ValidateExpected(algo, expected string) error {
	algoInfo, ok := supportedChecksums[strings.ToLower(algo)]
	if !ok {
		return fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	if len(expected) != algoInfo.HexLen {
		return fmt.Errorf("invalid %s digest: %d hex characters, want %d", algo, len(expected), algoInfo.HexLen)
	}
	if _, err := hex.DecodeString(expected); err != nil {
		return fmt.Errorf("invalid %s digest: %w", algo, err)
	}
	return nil
}

// Size confirms the file's length equals want.
func Size(path string, want int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error inspecting %s: %w", path, err)
	}
	if info.Size() != want {
		return &SizeMismatchError{Path: path, Got: info.Size(), Want: want}
	}
	return nil
}

// Checksum streams the file through the named digest and compares the
// result case-insensitively against expected.
func Checksum(path, algo, expected string, bufferSize int) error {
	algoInfo, ok := supportedChecksums[strings.ToLower(algo)]
	if !ok {
		return fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	h := algoInfo.NewHash()
	buffer := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, f, buffer); err != nil {
		return fmt.Errorf("error hashing %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, expected) {
		return &ChecksumMismatchError{Algo: algo, Got: got, Want: strings.ToLower(expected)}
	}
	return nil
}
