package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatus_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"s": StatusDegraded})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"s":"degraded"}` {
		t.Errorf("got %s", b)
	}
}

func TestStatus_UnmarshalJSON(t *testing.T) {
	var got map[string]Status
	if err := json.Unmarshal([]byte(`{"s":"unhealthy"}`), &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got["s"] != StatusUnhealthy {
		t.Errorf("got %v, want unhealthy", got["s"])
	}
	if err := json.Unmarshal([]byte(`{"s":"sideways"}`), &got); err == nil {
		t.Error("expected an error for an unknown status")
	}
}

func TestResultConstructors(t *testing.T) {
	cause := errors.New("redis down")

	if r := Healthy("ok"); r.Status != StatusHealthy || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow", cause); r.Status != StatusDegraded || r.Error != cause {
		t.Errorf("Degraded() = %+v", r)
	}
	if r := Unhealthy("down", cause); r.Status != StatusUnhealthy || r.Error != cause {
		t.Errorf("Unhealthy() = %+v", r)
	}

	r := Healthy("ok").WithDetails(map[string]any{"entries": 3})
	if r.Details["entries"] != 3 {
		t.Errorf("WithDetails lost details: %+v", r.Details)
	}
}

func TestCheckFunc(t *testing.T) {
	c := CheckFunc("custom", func(context.Context) Result { return Degraded("meh", nil) })
	if c.Name() != "custom" {
		t.Errorf("Name() = %q", c.Name())
	}
	if c.Check(context.Background()).Status != StatusDegraded {
		t.Error("CheckFunc did not call fn")
	}
}
