package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"splitfetch/internal/plan"
)

func TestRunDownloadsAllSegments(t *testing.T) {
	data := testData(1024 * 1024)
	server := httptest.NewServer(rangeHandler(t, data))
	defer server.Close()

	p := plan.Build(int64(len(data)), 4, 0)
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	if err := Run(context.Background(), testClient(), server.URL, p, outputPath, testOptions(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, seg := range p.Segments {
		got, err := os.ReadFile(seg.PartPath(outputPath))
		if err != nil {
			t.Fatalf("read part %d: %v", seg.Index, err)
		}
		if !bytes.Equal(got, data[seg.Start:seg.End+1]) {
			t.Errorf("part %d content mismatch", seg.Index)
		}
	}
}

func TestRunWorkerPoolBounded(t *testing.T) {
	data := testData(64 * 1024)
	var mu sync.Mutex
	current, peak := 0, 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		rangeHandler(t, data)(w, r)
	}))
	defer server.Close()

	// 8 segments but only 2 workers.
	p := plan.Build(int64(len(data)), 8, 0)
	p.Workers = 2
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	if err := Run(context.Background(), testClient(), server.URL, p, outputPath, testOptions(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak > 2 {
		t.Errorf("observed %d concurrent requests, worker pool is 2", peak)
	}
}

func TestRunFirstFailurePreservesParts(t *testing.T) {
	data := testData(256 * 1024)
	p := plan.Build(int64(len(data)), 4, 0)
	failStart := p.Segments[2].Start

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := parseRange(t, r)
		if start == failStart {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		rangeHandler(t, data)(w, r)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	err := Run(context.Background(), testClient(), server.URL, p, outputPath, testOptions(), nil)
	if err == nil {
		t.Fatal("expected failure when a segment keeps failing")
	}
	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("expected SegmentError, got %T: %v", err, err)
	}
	if segErr.Index != 3 {
		t.Errorf("failed segment index = %d, want 3", segErr.Index)
	}

	// Completed parts must survive the failure for a later resume.
	completed := 0
	for _, seg := range p.Segments {
		if seg.Index == 3 {
			continue
		}
		if info, err := os.Stat(seg.PartPath(outputPath)); err == nil && info.Size() == seg.Length() {
			completed++
		}
	}
	if completed == 0 {
		t.Error("expected at least one completed part left on disk")
	}
}

func TestRunExternalCancellation(t *testing.T) {
	data := testData(128 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		rangeHandler(t, data)(w, r)
	}))
	defer server.Close()

	p := plan.Build(int64(len(data)), 4, 0)
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, testClient(), server.URL, p, outputPath, testOptions(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
