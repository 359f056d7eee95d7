package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("backend hiccup"), 503)
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}
	if !IsTransient(fmt.Errorf("wrapped: %w", err)) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("bad request")) {
		t.Error("plain error should not be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	permanent := []int{200, 301, 400, 401, 403, 404, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestStatusOf(t *testing.T) {
	err := NewTransientError(errors.New("slow down"), 429)
	if got := StatusOf(err); got != 429 {
		t.Errorf("expected 429, got %d", got)
	}
	if got := StatusOf(fmt.Errorf("wrapped: %w", err)); got != 429 {
		t.Errorf("expected 429 through wrapping, got %d", got)
	}
	if got := StatusOf(errors.New("no status")); got != 0 {
		t.Errorf("expected 0 for plain error, got %d", got)
	}
}
