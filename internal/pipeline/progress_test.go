package pipeline

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

func TestTally(t *testing.T) {
	apples := catalog.NewEntry("PROD-00007", "Organic Apples")
	tally := Tally{Total: 6}

	tally.add(Outcome{Result: resolve.Exact{Entry: apples}})
	tally.add(Outcome{Result: resolve.Fuzzy{Entry: apples, Score: 2}})
	tally.add(Outcome{Result: resolve.Ambiguous{Reason: resolve.ReasonTie}, Problem: AmbiguousMatch})
	tally.add(Outcome{Result: resolve.Unresolved{}, Problem: UnknownProduct})
	tally.add(Outcome{})
	tally.fail()

	assert.Equal(t, Tally{Total: 6, Done: 6, Exact: 1, Fuzzy: 1, Ambiguous: 1, Unresolved: 2, Failed: 1}, tally)
	assert.Equal(t, 2, tally.Resolved())
	assert.Equal(t, 4, tally.Flagged())
}

func TestNoOpProgressCallback(t *testing.T) {
	var cb ProgressCallback = NoOpProgressCallback{}
	cb.OnStart(1)
	cb.OnOutcome(0, Outcome{}, Tally{})
	cb.OnError(0, assert.AnError, Tally{})
	cb.OnComplete(Tally{})
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "Resolving").WithWidth(10).WithUpdateInterval(0)

	cb.OnStart(4)
	assert.Equal(t, "Resolving 0/4\n", buf.String())

	buf.Reset()
	cb.OnOutcome(0, Outcome{}, Tally{Total: 4, Done: 2, Exact: 1, Unresolved: 1})
	out := buf.String()
	assert.Contains(t, out, "[█████░░░░░] 2/4")
	assert.Contains(t, out, "ok:1 flagged:1")

	buf.Reset()
	cb.OnError(3, assert.AnError, Tally{Total: 4, Done: 3, Exact: 1, Unresolved: 1, Failed: 1})
	assert.Contains(t, buf.String(), "Resolving capture 3 failed")
	assert.Contains(t, buf.String(), "flagged:2")

	buf.Reset()
	cb.OnComplete(Tally{Total: 4, Done: 4, Exact: 1, Fuzzy: 1, Unresolved: 1, Failed: 1})
	assert.Contains(t, buf.String(), "Resolving 2 resolved (1 exact, 1 fuzzy), 2 flagged in")
}

func TestConsoleProgressCallback_Throttling(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "").WithUpdateInterval(time.Hour).WithRate(false)
	cb.OnStart(10)

	buf.Reset()
	cb.OnOutcome(0, Outcome{}, Tally{Total: 10, Done: 1})
	assert.NotEmpty(t, buf.String())
	assert.NotContains(t, buf.String(), "/s")

	buf.Reset()
	cb.OnOutcome(1, Outcome{}, Tally{Total: 10, Done: 2})
	assert.Empty(t, buf.String(), "throttled")

	cb.OnOutcome(9, Outcome{}, Tally{Total: 10, Done: 10})
	assert.Contains(t, buf.String(), "10/10", "last capture always redraws")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cb := NewLogProgressCallback(logger, slog.LevelInfo).WithInterval(2)

	cb.OnStart(3)
	assert.Contains(t, buf.String(), "total=3")

	buf.Reset()
	cb.OnOutcome(0, Outcome{Problem: UnknownProduct}, Tally{Total: 3, Done: 1, Unresolved: 1})
	out := buf.String()
	assert.Contains(t, out, "Capture flagged")
	assert.Contains(t, out, "problem=unknown_product")
	assert.NotContains(t, out, "Progress update")

	buf.Reset()
	cb.OnError(1, assert.AnError, Tally{Total: 3, Done: 2, Unresolved: 1, Failed: 1})
	out = buf.String()
	assert.Contains(t, out, "Capture failed")
	assert.Contains(t, out, "Progress update")
	assert.Contains(t, out, "flagged=2")

	buf.Reset()
	cb.OnComplete(Tally{Total: 3, Done: 3, Exact: 1, Unresolved: 1, Failed: 1})
	out = buf.String()
	assert.Contains(t, out, "Captures resolved")
	assert.Contains(t, out, "exact=1")
	assert.Contains(t, out, "failed=1")
}
