package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

// ProgressCallback follows a ResolveCaptures run. Calls arrive from the
// collecting goroutine only, one at a time.
type ProgressCallback interface {
	OnStart(total int)
	// OnOutcome is called once per finished capture with the running tally.
	OnOutcome(index int, o Outcome, tally Tally)
	// OnError is called instead of OnOutcome when a capture returned an error.
	OnError(index int, err error, tally Tally)
	OnComplete(tally Tally)
}

// Tally counts finished captures of one batch by result kind.
type Tally struct {
	Total      int `json:"total"`
	Done       int `json:"done"`
	Exact      int `json:"exact"`
	Fuzzy      int `json:"fuzzy"`
	Ambiguous  int `json:"ambiguous"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// Resolved counts captures that produced a single catalog entity.
func (t Tally) Resolved() int { return t.Exact + t.Fuzzy }

// Flagged counts captures that need a human: ambiguous, unresolved or failed.
func (t Tally) Flagged() int { return t.Ambiguous + t.Unresolved + t.Failed }

func (t *Tally) add(o Outcome) {
	t.Done++
	if o.Result == nil {
		t.Unresolved++
		return
	}
	switch o.Result.Kind() {
	case resolve.KindExact:
		t.Exact++
	case resolve.KindFuzzy:
		t.Fuzzy++
	case resolve.KindAmbiguous:
		t.Ambiguous++
	default:
		t.Unresolved++
	}
}

func (t *Tally) fail() {
	t.Done++
	t.Failed++
}

// NoOpProgressCallback ignores every event.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)                   {}
func (NoOpProgressCallback) OnOutcome(int, Outcome, Tally) {}
func (NoOpProgressCallback) OnError(int, error, Tally)     {}
func (NoOpProgressCallback) OnComplete(Tally)              {}

// ConsoleProgressCallback draws a single updating status line, e.g.
//
//	Resolving [██████░░░░] 6/10 ok:5 flagged:1 3.2/s
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	showRate       bool

	mu         sync.Mutex
	startTime  time.Time
	lastUpdate time.Time
}

// NewConsoleProgressCallback writes to writer, or stderr when nil.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	if prefix != "" && !strings.HasSuffix(prefix, " ") {
		prefix += " "
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          30,
		updateInterval: 100 * time.Millisecond,
		showRate:       true,
	}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = max(width, 1)
	return c
}

// WithUpdateInterval throttles redraws; the final capture always redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.updateInterval = interval
	return c
}

// WithRate toggles the captures per second suffix.
func (c *ConsoleProgressCallback) WithRate(show bool) *ConsoleProgressCallback {
	c.showRate = show
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s0/%d\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnOutcome(_ int, _ Outcome, tally Tally) {
	c.redraw(tally)
}

func (c *ConsoleProgressCallback) OnError(index int, err error, tally Tally) {
	c.mu.Lock()
	_, _ = fmt.Fprintf(c.writer, "\n%scapture %d failed: %v\n", c.prefix, index, err)
	c.lastUpdate = time.Time{}
	c.mu.Unlock()
	c.redraw(tally)
}

func (c *ConsoleProgressCallback) OnComplete(tally Tally) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%s%d resolved (%d exact, %d fuzzy), %d flagged in %v\n",
		c.prefix, tally.Resolved(), tally.Exact, tally.Fuzzy, tally.Flagged(),
		time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) redraw(tally Tally) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && tally.Done < tally.Total {
		return
	}
	c.lastUpdate = now
	if tally.Total == 0 {
		return
	}

	filled := c.width * tally.Done / tally.Total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d ok:%d flagged:%d",
		c.prefix, bar, tally.Done, tally.Total, tally.Resolved(), tally.Flagged())
	if elapsed := now.Sub(c.startTime); c.showRate && elapsed > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(tally.Done)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.writer, status)
}

// LogProgressCallback reports through slog: a progress record every interval
// captures and one debug record per flagged capture.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	interval  int
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback logs at level; nil logger means slog.Default().
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval logs progress every n captures.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	l.interval = max(n, 1)
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, "Resolving captures", "total", total)
}

func (l *LogProgressCallback) OnOutcome(index int, o Outcome, tally Tally) {
	if o.Problem != ProblemNone {
		l.logger.Debug("Capture flagged", "index", index, "problem", string(o.Problem))
	}
	l.maybeLog(tally)
}

func (l *LogProgressCallback) OnError(index int, err error, tally Tally) {
	l.logger.Error("Capture failed", "index", index, "error", err)
	l.maybeLog(tally)
}

func (l *LogProgressCallback) OnComplete(tally Tally) {
	l.logger.Log(context.Background(), l.level, "Captures resolved",
		"total", tally.Total,
		"exact", tally.Exact,
		"fuzzy", tally.Fuzzy,
		"ambiguous", tally.Ambiguous,
		"unresolved", tally.Unresolved,
		"failed", tally.Failed,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) maybeLog(tally Tally) {
	if tally.Done-l.lastLog < l.interval && tally.Done != tally.Total {
		return
	}
	l.lastLog = tally.Done
	l.logger.Log(context.Background(), l.level, "Progress update",
		"done", tally.Done,
		"total", tally.Total,
		"resolved", tally.Resolved(),
		"flagged", tally.Flagged(),
	)
}
