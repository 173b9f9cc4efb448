package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weekly-deals/pkg/aggregator"
	"weekly-deals/pkg/api"
	"weekly-deals/pkg/web"
)

type stubFlyerSource struct {
	url string
	err error
}

func (s *stubFlyerSource) Name() string { return "Lidl" }
func (s *stubFlyerSource) FetchFlyerURL(ctx context.Context) (string, error) {
	return s.url, s.err
}

func TestFlyerProxyHandlerProblemDetails(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedType   string
		expectedDetail string
	}{
		{
			name:           "Unknown store",
			path:           "/flyer/konsum",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Store has no flyer. Available: lidl",
		},
		{
			name:           "Offer-only store has no flyer",
			path:           "/flyer/ica",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Store has no flyer. Available: lidl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rr := httptest.NewRecorder()

			flyerProxyHandler(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}

			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v",
					contentType, expectedContentType)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Errorf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}

			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if pd.Type != tt.expectedType {
				t.Errorf("JSON type mismatch: got %v want %v", pd.Type, tt.expectedType)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != tt.path {
				t.Errorf("JSON instance mismatch: got %v want %v", pd.Instance, tt.path)
			}
		})
	}
}

func TestFlyerProxyHandlerUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html>not found</html>")
	}))
	defer upstream.Close()

	flyerSources["lidl"] = &stubFlyerSource{url: upstream.URL + "/flyer.pdf"}
	defer delete(flyerSources, "lidl")

	req := httptest.NewRequest("GET", "/flyer/lidl", nil)
	rr := httptest.NewRecorder()

	flyerProxyHandler(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when the upstream does not return 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want problem JSON, not a mislabeled PDF", ct)
	}
}

func TestFlyerProxyHandlerStreamsPDF(t *testing.T) {
	const pdfBody = "%PDF-1.4 fake"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pdfBody)
	}))
	defer upstream.Close()

	flyerSources["lidl"] = &stubFlyerSource{url: upstream.URL + "/flyer.pdf"}
	defer delete(flyerSources, "lidl")

	req := httptest.NewRequest("GET", "/flyer/lidl", nil)
	rr := httptest.NewRecorder()

	flyerProxyHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if rr.Body.String() != pdfBody {
		t.Errorf("body = %q, want %q", rr.Body.String(), pdfBody)
	}
}

func TestRootHandlerUnknownPath(t *testing.T) {
	req := httptest.NewRequest("GET", "/nosuch", nil)
	rr := httptest.NewRecorder()

	rootHandler(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestRootHandlerRendersPage(t *testing.T) {
	deals = aggregator.New(time.Second)
	limiter = newRateLimiter(2 * time.Second)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	rr := httptest.NewRecorder()

	rootHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Veckans erbjudanden") {
		t.Errorf("page body missing heading: %s", rr.Body.String())
	}
}

func TestRootHandlerRenderFailure(t *testing.T) {
	deals = aggregator.New(time.Second)
	limiter = newRateLimiter(2 * time.Second)

	renderPage = func(w io.Writer, c web.PageContext) error {
		io.WriteString(w, "<html><body>halfway")
		return fmt.Errorf("template blew up")
	}
	defer func() { renderPage = web.RenderDeals }()

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.8:4711"
	rr := httptest.NewRecorder()

	rootHandler(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "halfway") {
		t.Errorf("partial HTML leaked into the error response: %s", rr.Body.String())
	}

	var pd api.ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
		t.Errorf("error response is not clean problem JSON: %v. Body: %s", err, rr.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	deals = aggregator.New(time.Second)
	limiter = newRateLimiter(time.Minute)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.9:4711"

	rr := httptest.NewRecorder()
	rootHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	rootHandler(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request inside the interval: status = %d, want 429", rr.Code)
	}

	// A different client is unaffected.
	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "198.51.100.10:4711"
	rr = httptest.NewRecorder()
	rootHandler(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rr.Code)
	}
}
