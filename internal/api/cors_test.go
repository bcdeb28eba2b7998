package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"disabled", nil, "GET", "https://app.example.com", "", http.StatusOK},
		{"no origin header", []string{"https://app.example.com"}, "GET", "", "", http.StatusOK},
		{"allowed", []string{"https://app.example.com"}, "GET", "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"trailing slash in config", []string{"https://app.example.com/"}, "GET", "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"disallowed", []string{"https://app.example.com"}, "GET", "https://evil.example.com", "", http.StatusOK},
		{"wildcard", []string{"*"}, "GET", "https://anything.example.com", "https://anything.example.com", http.StatusOK},
		{"second of many", []string{"https://one.example.com", "https://two.example.com"}, "GET", "https://two.example.com", "https://two.example.com", http.StatusOK},
		{"preflight", []string{"https://app.example.com"}, "OPTIONS", "https://app.example.com", "https://app.example.com", http.StatusNoContent},
		{"preflight disallowed", []string{"https://app.example.com"}, "OPTIONS", "https://evil.example.com", "", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/v1/tasks/t_1/github", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			corsMiddleware(tc.origins)(ok).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantOrigin == "" {
				return
			}
			if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-User-ID" {
				t.Errorf("Allow-Headers = %q", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, PATCH, DELETE, OPTIONS" {
				t.Errorf("Allow-Methods = %q", got)
			}
		})
	}
}

func TestCORSPreflightThroughServer(t *testing.T) {
	h := newTestHarness(t, func(c *Config) { c.CORSAllowedOrigins = []string{"https://app.example.com"} })

	req, err := http.NewRequest(http.MethodOptions, h.BaseURL+"/v1/tasks/t_1/github", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	AssertCORSHeaders(t, resp, "https://app.example.com")
	AssertStatus(t, resp, http.StatusNoContent)
}
