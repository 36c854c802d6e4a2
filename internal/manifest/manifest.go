// Package manifest persists the identity of a partially downloaded
// resource so a later run can safely resume it.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"splitfetch/internal/logger"
	"splitfetch/internal/probe"
)

// Manifest records what was being downloaded and how it was split. It
// is written once before the fetch stage and never mutated during it.
type Manifest struct {
	URL          string `json:"url"`
	Output       string `json:"output"`
	Size         int64  `json:"size"`
	AcceptRanges bool   `json:"accept_ranges"`
	ETag         string `json:"etag"`
	LastModified string `json:"last_modified"`
	NumParts     int    `json:"num_parts"`
	ChunkSize    int64  `json:"chunk_size"`
}

// Decision is the outcome of comparing a stored manifest against a
// fresh probe.
type Decision int

const (
	// Bootstrap means no usable manifest exists and a fresh one must
	// be synthesized.
	Bootstrap Decision = iota
	// Reuse means the stored identity matches the probed resource.
	Reuse
	// Rebuild means the stored identity no longer matches; the
	// manifest must be discarded, never merged.
	Rebuild
)

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case Rebuild:
		return "rebuild"
	default:
		return "bootstrap"
	}
}

// Path returns the manifest location for an output file.
func Path(outputPath string) string {
	return outputPath + ".resume.json"
}

// Load reads a manifest from disk. An absent or unreadable manifest is
// not an error; it simply means there is nothing to resume.
func Load(path string) *Manifest {
	log := logger.New("manifest")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Discarding unreadable manifest")
		return nil
	}
	return &m
}

// Evaluate compares a stored manifest against a freshly probed
// resource. URL and size must match outright; each validator is
// compared only when both sides carry it.
func Evaluate(m *Manifest, res *probe.Resource) Decision {
	if m == nil {
		return Bootstrap
	}
	if m.URL != res.FinalURL || m.Size != res.Size {
		return Rebuild
	}
	if m.ETag != "" && res.ETag != "" && m.ETag != res.ETag {
		return Rebuild
	}
	if m.LastModified != "" && res.LastModified != "" && m.LastModified != res.LastModified {
		return Rebuild
	}
	return Reuse
}

// Write persists the manifest durably: marshal to a temp file in the
// same directory, then rename over the target so a crash mid-write
// never leaves a corrupt record.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error finalizing manifest: %w", err)
	}
	return nil
}

// Clear removes the manifest; a missing file is fine.
func Clear(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log := logger.New("manifest")
		log.Debug().Err(err).Str("path", path).Msg("Could not remove manifest")
	}
}
