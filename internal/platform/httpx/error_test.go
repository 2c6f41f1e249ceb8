package httpx

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorEmitsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, NewError("order_not_found", "order not found", 404))

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var payload struct {
		Code    string `json:"error"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Code != "order_not_found" || payload.Status != 404 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestNewErrorBoundsHostileMessages(t *testing.T) {
	err := NewError("code", "line one\ninjected=true\r"+strings.Repeat("x", 600), 400)

	if strings.ContainsAny(err.Message, "\n\r") {
		t.Fatalf("message kept newlines: %q", err.Message)
	}
	if len(err.Message) > 512 {
		t.Fatalf("message length = %d, want <= 512", len(err.Message))
	}
	if err.Status != 400 {
		t.Fatalf("status = %d, want 400", err.Status)
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if err := NewError("oops", "boom", 0); err.Status != 500 {
		t.Fatalf("status = %d, want 500", err.Status)
	}
}
