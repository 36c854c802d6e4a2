package plan

import (
	"reflect"
	"testing"
)

func TestBuildPartitionsExactly(t *testing.T) {
	cases := []struct {
		name        string
		size        int64
		workers     int
		chunkSizeMB int
	}{
		{"even split", 1024, 4, 0},
		{"uneven split", 1000, 3, 0},
		{"single worker", 4096, 1, 0},
		{"more workers than bytes", 5, 8, 0},
		{"fixed chunk", 10 * 1024 * 1024, 4, 3},
		{"fixed chunk exact multiple", 4 * 1024 * 1024, 2, 1},
		{"tiny file", 1, 8, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Build(tc.size, tc.workers, tc.chunkSizeMB)
			if len(p.Segments) == 0 {
				t.Fatal("no segments produced")
			}
			var next int64
			for i, seg := range p.Segments {
				if seg.Index != i+1 {
					t.Errorf("segment %d has index %d", i, seg.Index)
				}
				if seg.Start != next {
					t.Errorf("segment %d starts at %d, want %d (gap or overlap)", seg.Index, seg.Start, next)
				}
				if seg.End < seg.Start {
					t.Errorf("segment %d has end %d before start %d", seg.Index, seg.End, seg.Start)
				}
				next = seg.End + 1
			}
			if next != tc.size {
				t.Errorf("segments cover [0,%d), want [0,%d)", next, tc.size)
			}
		})
	}
}

func TestBuildChunkOverridePolicy(t *testing.T) {
	// 10 MiB with 3 MB chunks: ceil(10485760/3145728) = 4 segments,
	// workers capped at the segment count.
	p := Build(10*1024*1024, 16, 3)
	if len(p.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(p.Segments))
	}
	if p.Workers != 4 {
		t.Errorf("expected workers capped to 4, got %d", p.Workers)
	}

	// Without an override the segment count follows the worker count.
	p = Build(10*1024*1024, 4, 0)
	if len(p.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(p.Segments))
	}
	if p.Workers != 4 {
		t.Errorf("expected 4 effective workers, got %d", p.Workers)
	}
	approx := int64(10 * 1024 * 1024 / 4)
	for _, seg := range p.Segments[:3] {
		if seg.Length() != approx {
			t.Errorf("segment %d length %d, want %d", seg.Index, seg.Length(), approx)
		}
	}
}

func TestBuildFinalSegmentClamped(t *testing.T) {
	p := Build(1000, 3, 0)
	last := p.Segments[len(p.Segments)-1]
	if last.End != 999 {
		t.Errorf("final segment ends at %d, want 999", last.End)
	}
}

func TestBuildIdempotent(t *testing.T) {
	a := Build(123456789, 7, 2)
	b := Build(123456789, 7, 2)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different plans")
	}
}

func TestPartPath(t *testing.T) {
	seg := Segment{Index: 3, Start: 0, End: 9}
	if got := seg.PartPath("/tmp/file.bin"); got != "/tmp/file.bin.p3" {
		t.Errorf("unexpected part path %q", got)
	}
}
