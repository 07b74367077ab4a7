package engine

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header  string
		start   int64
		end     int64
		total   int64
		wantErr bool
	}{
		{"bytes 0-0/1000", 0, 0, 1000, false},
		{"bytes 249-497/1000", 249, 497, 1000, false},
		{" bytes 5-9/* ", 5, 9, -1, false},
		{"items 0-0/10", 0, 0, 0, true},
		{"bytes 0-0", 0, 0, 0, true},
		{"bytes a-0/10", 0, 0, 0, true},
		{"bytes 0-b/10", 0, 0, 0, true},
		{"bytes 0-0/x", 0, 0, 0, true},
	}
	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseContentRange(%q): expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseContentRange(%q): %v", tt.header, err)
			continue
		}
		if start != tt.start || end != tt.end || total != tt.total {
			t.Errorf("ParseContentRange(%q) = %d, %d, %d; want %d, %d, %d", tt.header, start, end, total, tt.start, tt.end, tt.total)
		}
	}
}

func serveBytes(data []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(data))
	})
}

// serveEmpty answers every ranged request the way servers describe an empty
// resource.
func serveEmpty() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes */0")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	})
}

func TestProbeLength(t *testing.T) {
	server := httptest.NewServer(serveBytes(randomBytes(1234, 1)))
	defer server.Close()

	total, err := ProbeLength(context.Background(), NewHTTPRangeClient(server.Client()), server.URL)
	if err != nil {
		t.Fatalf("ProbeLength: %v", err)
	}
	if total != 1234 {
		t.Errorf("expected total 1234, got %d", total)
	}
}

func TestProbeLengthEmptyResource(t *testing.T) {
	server := httptest.NewServer(serveEmpty())
	defer server.Close()

	total, err := ProbeLength(context.Background(), NewHTTPRangeClient(server.Client()), server.URL)
	if err != nil {
		t.Fatalf("ProbeLength: %v", err)
	}
	if total != 0 {
		t.Errorf("expected total 0, got %d", total)
	}
}

func TestProbeLengthUnsupported(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"no range support": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("whole body"))
		},
		"empty body without range": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
		},
		"unknown total": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", "bytes 0-0/*")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("w"))
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()
			_, err := ProbeLength(context.Background(), NewHTTPRangeClient(server.Client()), server.URL)
			if !errors.Is(err, ErrUnsupportedResource) {
				t.Errorf("expected ErrUnsupportedResource, got %v", err)
			}
		})
	}
}

func TestProbeLengthServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := ProbeLength(context.Background(), NewHTTPRangeClient(server.Client()), server.URL)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestHTTPRangeClientSendsRange(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPRangeClient(server.Client())
	resp, err := client.Get(context.Background(), server.URL, "bytes=10-19")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if gotRange != "bytes=10-19" {
		t.Errorf("expected Range bytes=10-19, got %q", gotRange)
	}

	resp, err = client.Get(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if gotRange != "" {
		t.Errorf("expected no Range header, got %q", gotRange)
	}
}
