package modelgateway

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestErrorFromHTTPStatus_Classification(t *testing.T) {
	tests := []struct {
		status        int
		wantRetryable bool
	}{
		{400, false},
		{422, false},
		{401, false},
		{403, false},
		{413, false},
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{599, true}, // unknown statuses default retryable
	}
	for _, tt := range tests {
		err := ErrorFromHTTPStatus("openai", tt.status, "boom", nil)
		gwErr, ok := err.(Error)
		if !ok {
			t.Fatalf("status %d: expected an Error, got %T", tt.status, err)
		}
		if gwErr.Retryable() != tt.wantRetryable {
			t.Fatalf("status %d: expected retryable=%v, got %v", tt.status, tt.wantRetryable, gwErr.Retryable())
		}
		if gwErr.StatusCode() != tt.status {
			t.Fatalf("status %d: StatusCode() = %d", tt.status, gwErr.StatusCode())
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := ErrorFromHTTPStatus("p", 500, "", nil)
	if !IsRetryable(retryable) {
		t.Fatalf("expected 500 to be retryable")
	}
	nonRetryable := ErrorFromHTTPStatus("p", 401, "", nil)
	if IsRetryable(nonRetryable) {
		t.Fatalf("expected 401 to not be retryable")
	}
	if IsRetryable(&SchemaParseError{Schema: "x"}) {
		t.Fatalf("expected SchemaParseError to not satisfy Error/IsRetryable")
	}
}

func TestSchemaParseError_Unwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &SchemaParseError{Schema: "Solution", Cause: cause}
	if err.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := ParseRetryAfter("5", now)
	if d == nil || *d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Second).Format(http.TimeFormat)
	d := ParseRetryAfter(future, now)
	if d == nil || *d < 9*time.Second || *d > 11*time.Second {
		t.Fatalf("expected ~10s, got %v", d)
	}
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	if d := ParseRetryAfter("", time.Now()); d != nil {
		t.Fatalf("expected nil for empty input, got %v", d)
	}
	if d := ParseRetryAfter("not-a-date", time.Now()); d != nil {
		t.Fatalf("expected nil for garbage input, got %v", d)
	}
}
