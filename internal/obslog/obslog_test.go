package obslog

import (
	"testing"
	"time"
)

func TestThrottledLoggerSuppressesBurst(t *testing.T) {
	slog := New("obslog-test")
	tl := Throttled(slog, time.Hour, time.Hour)

	tl.next = time.Now().Add(-time.Second) // force the first call ready
	tl.curDelay = time.Hour

	if !tl.ready() {
		t.Fatal("first call should be ready")
	}
	if tl.ready() {
		t.Fatal("immediate second call should be suppressed")
	}
}

func TestSetLevelRejectsGarbage(t *testing.T) {
	if err := SetLevel("not-a-level"); err == nil {
		t.Fatal("want error for invalid level")
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug): %v", err)
	}
}
