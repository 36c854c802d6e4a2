package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"splitfetch/internal/probe"
)

func sampleManifest() *Manifest {
	return &Manifest{
		URL:          "https://example.com/file.bin",
		Output:       "file.bin",
		Size:         1000,
		AcceptRanges: true,
		ETag:         "abc123",
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		NumParts:     4,
		ChunkSize:    250,
	}
}

func matchingResource() *probe.Resource {
	return &probe.Resource{
		FinalURL:     "https://example.com/file.bin",
		Size:         1000,
		AcceptRanges: true,
		ETag:         "abc123",
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
	}
}

func TestEvaluateReuse(t *testing.T) {
	if d := Evaluate(sampleManifest(), matchingResource()); d != Reuse {
		t.Errorf("expected reuse, got %s", d)
	}
}

func TestEvaluateBootstrapWhenAbsent(t *testing.T) {
	if d := Evaluate(nil, matchingResource()); d != Bootstrap {
		t.Errorf("expected bootstrap, got %s", d)
	}
}

func TestEvaluateRebuildOnIdentityMismatch(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Manifest, *probe.Resource)
	}{
		{"url changed", func(m *Manifest, r *probe.Resource) { r.FinalURL = "https://example.com/other.bin" }},
		{"size changed", func(m *Manifest, r *probe.Resource) { r.Size = 2000 }},
		{"etag changed", func(m *Manifest, r *probe.Resource) { r.ETag = "def456" }},
		{"last-modified changed", func(m *Manifest, r *probe.Resource) { r.LastModified = "Thu, 02 Jan 2025 00:00:00 GMT" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, r := sampleManifest(), matchingResource()
			tc.mutate(m, r)
			if d := Evaluate(m, r); d != Rebuild {
				t.Errorf("expected rebuild, got %s", d)
			}
		})
	}
}

func TestEvaluateValidatorsComparedOnlyWhenBothPresent(t *testing.T) {
	m, r := sampleManifest(), matchingResource()
	m.ETag = ""
	r.LastModified = ""
	if d := Evaluate(m, r); d != Reuse {
		t.Errorf("missing validators should not invalidate, got %s", d)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin.resume.json")

	m := sampleManifest()
	if err := m.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after rename")
	}

	loaded := Load(path)
	if loaded == nil {
		t.Fatal("Load returned nil for existing manifest")
	}
	if *loaded != *m {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, m)
	}
}

func TestLoadAbsentOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	if m := Load(filepath.Join(dir, "missing.resume.json")); m != nil {
		t.Error("expected nil for absent manifest")
	}

	corrupt := filepath.Join(dir, "corrupt.resume.json")
	os.WriteFile(corrupt, []byte("{not json"), 0644)
	if m := Load(corrupt); m != nil {
		t.Error("expected nil for corrupt manifest")
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.resume.json")
	if err := sampleManifest().Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	Clear(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("manifest not removed")
	}
	// Clearing again must be harmless.
	Clear(path)
}

func TestPath(t *testing.T) {
	if got := Path("file.bin"); got != "file.bin.resume.json" {
		t.Errorf("unexpected manifest path %q", got)
	}
}
