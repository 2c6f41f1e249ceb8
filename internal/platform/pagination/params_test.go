package pagination

import (
	"net/http/httptest"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/orders", nil)

	params, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 1 {
		t.Errorf("expected page 1, got %d", params.Page)
	}
	if params.PageSize != DefaultPageSize {
		t.Errorf("expected default page size, got %d", params.PageSize)
	}
	if params.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", params.Offset())
	}
}

func TestParseExplicitValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/orders?page=3&pageSize=25", nil)

	params, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 3 || params.PageSize != 25 {
		t.Errorf("unexpected params: %+v", params)
	}
	if params.Offset() != 50 {
		t.Errorf("expected offset 50, got %d", params.Offset())
	}
}

func TestParseCapsPageSize(t *testing.T) {
	r := httptest.NewRequest("GET", "/orders?pageSize=5000", nil)

	params, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != MaxPageSize {
		t.Errorf("expected capped page size %d, got %d", MaxPageSize, params.PageSize)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	for _, target := range []string{"/orders?page=0", "/orders?page=abc", "/orders?pageSize=-2"} {
		r := httptest.NewRequest("GET", target, nil)
		if _, err := Parse(r); err == nil {
			t.Errorf("expected error for %s", target)
		}
	}
}
