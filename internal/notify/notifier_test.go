package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogNotifierWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	n.Notify(context.Background(), "New buddy request from Ana")
	n.SetBadgeCount(context.Background(), 2)

	out := buf.String()
	if !strings.Contains(out, `"description":"New buddy request from Ana"`) {
		t.Fatalf("expected description in log output: %s", out)
	}
	if !strings.Contains(out, `"count":2`) {
		t.Fatalf("expected badge count in log output: %s", out)
	}
}

func TestRecorderForwards(t *testing.T) {
	inner := NewRecorder(nil)
	r := NewRecorder(inner)

	r.Notify(context.Background(), "a")
	r.Notify(context.Background(), "b")
	r.SetBadgeCount(context.Background(), 2)

	if got := r.Notifications(); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected notifications %v", got)
	}
	if inner.Badge() != 2 || len(inner.Notifications()) != 2 {
		t.Fatal("expected notifications forwarded")
	}
}
