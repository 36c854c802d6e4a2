package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSingleDownload(t *testing.T) {
	data := testData(300 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			t.Error("single-stream download must not send a Range header")
		}
		w.Write(data)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "whole.bin")
	if err := SingleDownload(context.Background(), testClient(), server.URL, outputPath, testOptions(), nil); err != nil {
		t.Fatalf("SingleDownload: %v", err)
	}
	got, _ := os.ReadFile(outputPath)
	if !bytes.Equal(got, data) {
		t.Error("downloaded content mismatch")
	}
}

func TestSingleDownloadRetriesFromScratch(t *testing.T) {
	data := testData(64 * 1024)
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Truncated first attempt.
			w.Header().Set("Content-Length", "999999")
			w.Write(data[:1000])
			return
		}
		w.Write(data)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "whole.bin")
	if err := SingleDownload(context.Background(), testClient(), server.URL, outputPath, testOptions(), nil); err != nil {
		t.Fatalf("SingleDownload: %v", err)
	}
	got, _ := os.ReadFile(outputPath)
	if !bytes.Equal(got, data) {
		t.Errorf("expected clean restart to produce full content, got %d bytes", len(got))
	}
}

func TestSingleDownloadExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "whole.bin")
	err := SingleDownload(context.Background(), testClient(), server.URL, outputPath, testOptions(), nil)
	if err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
}
