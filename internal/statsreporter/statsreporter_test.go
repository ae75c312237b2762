package statsreporter

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestReporter_LogsCounters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	counters := &Counters{}
	atomic.StoreInt64(&counters.AnnouncesTotal, 42)

	r, err := New(logger, counters, "* * * * * *")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for buf.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if buf.Len() == 0 {
		t.Fatal("expected at least one stats log line within 2s")
	}
	if !bytes.Contains(buf.Bytes(), []byte("announces_total")) {
		t.Errorf("expected announces_total in log output, got %s", buf.String())
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if _, err := New(logger, &Counters{}, "not a schedule"); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}
