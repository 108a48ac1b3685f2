package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name      string
		allowed   []string
		origin    string
		preflight bool
		wantCode  int
		wantAllow string
	}{
		{"listed origin", []string{"https://studio.test/"}, "https://studio.test", false, http.StatusOK, "https://studio.test"},
		{"unlisted origin", []string{"https://studio.test"}, "https://evil.test", false, http.StatusOK, ""},
		{"wildcard", []string{"*"}, "https://any.test", false, http.StatusOK, "https://any.test"},
		{"preflight", []string{"*"}, "https://any.test", true, http.StatusNoContent, "https://any.test"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodGet
			if tc.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/v1/images", nil)
			req.Header.Set("Origin", tc.origin)
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllow)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://studio.test"})
	for origin, want := range map[string]bool{"": true, "https://studio.test": true, "https://evil.test": false} {
		req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Errorf("origin %q allowed = %v, want %v", origin, got, want)
		}
	}
}
