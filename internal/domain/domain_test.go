package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPayloadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Payload
	}{
		{"empty", Payload{}},
		{"scalars", Payload{"s": "hi", "b": true, "n": nil, "i": json.Number("42"), "f": json.Number("1.5")}},
		{"big int", Payload{"id": json.Number("9007199254740993")}},
		{"nested", Payload{
			"list": []any{"a", json.Number("1"), false, nil, []any{}},
			"obj":  map[string]any{"deep": map[string]any{"x": "y"}},
		}},
		{"unicode", Payload{"msg": "привет ☃ \"quoted\""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.in.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := DecodePayload(data)
			if err != nil {
				t.Fatalf("DecodePayload() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.in) {
				t.Errorf("round trip = %#v, want %#v", got, tt.in)
			}
		})
	}
}

func TestPayloadEncodeRejectsUnserializable(t *testing.T) {
	_, err := Payload{"ch": make(chan int)}.Encode()
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		p, err := DecodePayload([]byte(in))
		if err != nil {
			t.Fatalf("DecodePayload(%q) error = %v", in, err)
		}
		if p == nil || len(p) != 0 {
			t.Errorf("DecodePayload(%q) = %v, want empty payload", in, p)
		}
	}

	if _, err := DecodePayload([]byte("[1,2]")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for array, got %v", err)
	}
}

func TestPayloadAccessors(t *testing.T) {
	p, err := DecodePayload([]byte(`{"name":"x","count":7,"ratio":2.9,"id":"abc"}`))
	if err != nil {
		t.Fatal(err)
	}

	if got := p.String("name"); got != "x" {
		t.Errorf("String(name) = %q", got)
	}
	if got := p.String("count"); got != "7" {
		t.Errorf("String(count) = %q", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := p.Int("count", 0); got != 7 {
		t.Errorf("Int(count) = %d", got)
	}
	if got := p.Int("ratio", 0); got != 2 {
		t.Errorf("Int(ratio) = %d", got)
	}
	if got := p.Int("name", -1); got != -1 {
		t.Errorf("Int(name) = %d, want default", got)
	}
}

func TestJobProgress(t *testing.T) {
	job := NewJob("h1", "Cleanup", nil)

	if job.Payload == nil {
		t.Fatal("payload should not be nil")
	}
	if job.Progress() != 0 {
		t.Errorf("Progress() without denominator = %v", job.Progress())
	}

	job.SetStatus(3, 4)
	if n, d := job.Status(); n != 3 || d != 4 {
		t.Errorf("Status() = %d/%d", n, d)
	}
	if job.Progress() != 0.75 {
		t.Errorf("Progress() = %v, want 0.75", job.Progress())
	}

	job.SetStatus(10, 4)
	if job.Progress() != 1 {
		t.Errorf("Progress() = %v, want capped at 1", job.Progress())
	}
}

func TestJobIsReady(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	job := NewJob("h1", "Notify", nil)

	if !job.IsReady(now) {
		t.Error("job without NotBefore should be ready")
	}

	job.NotBefore = now.Add(time.Minute)
	if job.IsReady(now) {
		t.Error("job should not be ready before NotBefore")
	}
	if !job.IsReady(now.Add(time.Minute)) {
		t.Error("job should be ready at NotBefore")
	}
}

func TestScheduledJobState(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := &ScheduledJob{WorkerName: "SendEmail", TsScheduled: at}

	if job.IsSaved() {
		t.Error("job without ID should not be saved")
	}
	if got := job.State(at.Add(-time.Second)); got != ScheduledJobPending {
		t.Errorf("State(before) = %s", got)
	}
	if got := job.State(at); got != ScheduledJobDue {
		t.Errorf("State(at) = %s, boundary must be inclusive", got)
	}

	job.ID = uuid.New()
	job.MarkExecuted(at.Add(time.Second))
	if got := job.State(at.Add(time.Hour)); got != ScheduledJobExecuted {
		t.Errorf("State(after executed) = %s", got)
	}
	if job.IsDue(at.Add(time.Hour)) {
		t.Error("executed job must not be due")
	}
}

func TestRecurrencePatternValidate(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name    string
		pattern RecurrencePattern
		wantErr bool
	}{
		{"daily", RecurrencePattern{Type: RecurDay, Interval: 1, DateStart: start}, false},
		{"zero interval", RecurrencePattern{Type: RecurDay, Interval: 0, DateStart: start}, true},
		{"unknown type", RecurrencePattern{Type: "fortnight", Interval: 1}, true},
		{"cron without expr", RecurrencePattern{Type: RecurCron}, true},
		{"cron", RecurrencePattern{Type: RecurCron, Expr: "*/5 * * * *"}, false},
		{"bad day of month", RecurrencePattern{Type: RecurMonth, Interval: 1, DayOfMonth: 32}, true},
		{"end before start", RecurrencePattern{Type: RecurHour, Interval: 1, DateStart: start, DateEnd: &before}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecurrence) {
				t.Errorf("expected ErrInvalidRecurrence, got %v", err)
			}
		})
	}
}

func TestRecurrenceStep(t *testing.T) {
	p := RecurrencePattern{Type: RecurWeek, Interval: 2}
	if p.Step() != 14*24*time.Hour {
		t.Errorf("Step() = %v", p.Step())
	}
	p = RecurrencePattern{Type: RecurMonth, Interval: 1}
	if p.Step() != 0 {
		t.Errorf("month Step() = %v, want 0", p.Step())
	}
}

func TestWorkflowListensTo(t *testing.T) {
	wf := &Workflow{OnCreate: true, AllowManual: true}

	if !wf.ListensTo(EventCreate) || !wf.ListensTo(EventManual) {
		t.Error("workflow should listen to create and manual")
	}
	if wf.ListensTo(EventUpdate) || wf.ListensTo(EventDelete) {
		t.Error("workflow should not listen to update or delete")
	}
	if wf.ListensTo("archive") {
		t.Error("unknown event must not match")
	}
}

func TestEntityValues(t *testing.T) {
	e := &Entity{ObjType: "task"}
	if e.GetValue("name") != nil {
		t.Error("unset field should be nil")
	}
	e.SetValue("name", "Call back")
	e.ID = "42"

	if e.GetValue("name") != "Call back" {
		t.Errorf("GetValue(name) = %v", e.GetValue("name"))
	}
	if e.GetValue("id") != "42" {
		t.Errorf("GetValue(id) = %v", e.GetValue("id"))
	}
}
