package execution

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecordLogsFill(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	exec := NewExecutor(logger)
	exec.Record(Fill{Seq: 1, Ts: time.UnixMilli(0), Side: Buy, Units: 9.5, Price: 100, Cash: 50, Asset: 9.5})

	out := buf.String()
	if !strings.Contains(out, `"side":"BUY"`) {
		t.Fatalf("log does not contain side: %s", out)
	}
	if !strings.Contains(out, "paper fill") {
		t.Fatalf("log does not contain message: %s", out)
	}
}

func TestFillNotional(t *testing.T) {
	fill := Fill{Units: 9.5, Price: 90}
	if got := fill.Notional(); got != 855 {
		t.Fatalf("expected notional 855, got %.2f", got)
	}
}
