package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func etagHandler(body string) echo.HandlerFunc {
	return ETag(5 * time.Minute)(func(c echo.Context) error {
		return c.String(http.StatusOK, body)
	})
}

func TestETag_SetsHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := etagHandler("hello world")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) || !strings.HasSuffix(etag, `"`) {
		t.Errorf("expected weak ETag format W/\"...\", got %q", etag)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("expected 'public, max-age=300', got %q", cc)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("expected body to be flushed, got %q", rec.Body.String())
	}
}

func TestETag_304OnMatch(t *testing.T) {
	e := echo.New()

	rec1 := httptest.NewRecorder()
	c1 := e.NewContext(httptest.NewRequest(http.MethodGet, "/openapi.json", nil), rec1)
	if err := etagHandler("hello world")(c1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	etag := rec1.Header().Get("ETag")

	req2 := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(req2, rec2)
	if err := etagHandler("hello world")(c2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec2.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec2.Code)
	}
	if rec2.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec2.Body.String())
	}
}

func TestETag_200OnMismatch(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	req.Header.Set("If-None-Match", `W/"stale"`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := etagHandler("fresh")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "fresh" {
		t.Errorf("expected body 'fresh', got %q", rec.Body.String())
	}
}

func TestETag_SkipsNonGET(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := etagHandler("created")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on POST")
	}
}

func TestETag_SkipsNonOKResponses(t *testing.T) {
	e := echo.New()
	handler := ETag(time.Minute)(func(c echo.Context) error {
		return c.String(http.StatusNotFound, "not found")
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/missing", nil), rec)

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on error response")
	}
}

func TestComputeETag(t *testing.T) {
	a := computeETag([]byte("one"))
	if a != computeETag([]byte("one")) {
		t.Error("expected identical bodies to produce identical ETags")
	}
	if a == computeETag([]byte("two")) {
		t.Error("expected different bodies to produce different ETags")
	}
}

func TestETagMatch(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{`W/"abc"`, `W/"abc"`, true},
		{`"abc"`, `W/"abc"`, true},
		{`"x", W/"abc"`, `W/"abc"`, true},
		{"*", `W/"abc"`, true},
		{`"def"`, `W/"abc"`, false},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatch(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}
