package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/ddi-engine/config"
	"github.com/giygas/ddi-engine/logging"
)

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"single forwarded ip", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"forwarded chain keeps the client", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "203.0.113.1"},
		{"real ip header", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "198.51.100.4"},
		{"no proxy headers", nil, "192.168.1.1:12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			var got string
			RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			})).ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.expected {
				t.Errorf("Expected RemoteAddr %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	logging.InitLogger("")
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   int
	}{
		{"localhost ipv4", "127.0.0.1:12345", nil, http.StatusOK},
		{"localhost ipv6", "[::1]:12345", nil, http.StatusOK},
		{"remote without proxy headers", "203.0.113.9:5555", nil, http.StatusForbidden},
		{"remote through proxy", "10.0.0.2:5555", map[string]string{"X-Real-IP": "203.0.113.9"}, http.StatusOK},
		{"unparsable address", "not-an-address", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			BlockDirectAccessMiddleware(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	logging.InitLogger("")
	cfg := &config.Config{MaxRequestBody: 64, MaxHeaderSize: 128}

	t.Run("body within limit", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/check", strings.NewReader(`{"medications":["a","b"]}`))
		rr := httptest.NewRecorder()
		RequestSizeMiddleware(cfg)(okHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})

	t.Run("declared body too large", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/check", strings.NewReader(strings.Repeat("x", 100)))
		rr := httptest.NewRecorder()
		RequestSizeMiddleware(cfg)(okHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "64 bytes") {
			t.Errorf("Expected the limit in the message, got %s", rr.Body.String())
		}
	})

	t.Run("chunked body is capped while reading", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/check", strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		var readErr error
		handler := RequestSizeMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if readErr == nil {
			t.Error("Expected reading past the limit to fail")
		}
	})

	t.Run("headers too large", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Padding", strings.Repeat("y", 200))
		rr := httptest.NewRecorder()
		RequestSizeMiddleware(cfg)(okHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestHeaderFieldsTooLarge {
			t.Errorf("Expected 431, got %d", rr.Code)
		}
	})
}

func TestClientHost(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:8080": "192.0.2.1",
		"[::1]:443":      "::1",
		"192.0.2.1":      "192.0.2.1",
	}
	for in, want := range tests {
		if got := clientHost(in); got != want {
			t.Errorf("clientHost(%q) = %q, want %q", in, got, want)
		}
	}
}
