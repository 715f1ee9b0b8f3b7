package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(q string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+q, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"fhir params", "_count=5&_offset=10", 5, 10},
		{"plain params", "limit=7&offset=3", 7, 3},
		{"fhir wins", "_count=5&limit=50", 5, 0},
		{"capped", "_count=1000", MaxLimit, 0},
		{"negative", "_count=-1&offset=-4", DefaultLimit, 0},
		{"garbage", "_count=abc&_offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(contextWithQuery(tt.query))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse([]string{"a"}, 30, Params{Limit: 10, Offset: 10})
	if !r.HasMore {
		t.Error("expected has_more on middle page")
	}
	r = NewResponse([]string{"a"}, 20, Params{Limit: 10, Offset: 10})
	if r.HasMore {
		t.Error("expected no more on last page")
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		p          Params
		n          int
		start, end int
	}{
		{Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{Params{Limit: 10, Offset: 40}, 25, 25, 25},
		{Params{Limit: 10, Offset: 0}, 0, 0, 0},
	}
	for _, tt := range tests {
		s, e := tt.p.Window(tt.n)
		if s != tt.start || e != tt.end {
			t.Errorf("Window(%d) with %+v = [%d,%d), want [%d,%d)", tt.n, tt.p, s, e, tt.start, tt.end)
		}
	}
}

func TestLinks(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	filters := url.Values{"name": {"smith"}, "_count": {"10"}}
	links := p.Links("/api/fhir/patients", filters, 35)

	want := map[string]string{
		"self":     "/api/fhir/patients?_count=10&_offset=10&name=smith",
		"next":     "/api/fhir/patients?_count=10&_offset=20&name=smith",
		"previous": "/api/fhir/patients?_count=10&_offset=0&name=smith",
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %v", len(want), len(links), links)
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s: got %q, want %q", l.Relation, l.URL, want[l.Relation])
		}
	}
}

func TestLinks_FirstPageOnly(t *testing.T) {
	links := Params{Limit: 20}.Links("/x", nil, 5)
	if len(links) != 1 || links[0].Relation != "self" {
		t.Errorf("expected only self link, got %v", links)
	}
}
