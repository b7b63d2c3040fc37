// Package status holds the single current status line shown to the user and
// the append-only event log behind it.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

type Severity string

const (
	Neutral Severity = "neutral"
	OK      Severity = "ok"
	Warn    Severity = "warn"
	Err     Severity = "err"
)

type Status struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type Entry struct {
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// SeverityFor maps a failure to the severity it is shown with.
func SeverityFor(err error) Severity {
	if err == nil {
		return OK
	}
	switch utils.KindOf(err) {
	case utils.InputMissing, utils.CapabilityDenied, utils.DecodeEmpty, utils.ClipboardUnavailable:
		return Warn
	default:
		return Err
	}
}

// Board keeps the current status and the event log. Set always overwrites;
// log lines are never removed.
type Board struct {
	mu       sync.Mutex
	current  Status
	entries  []Entry
	now      func() time.Time
	onChange func(Status)
}

func NewBoard() *Board {
	return &Board{
		current: Status{Severity: Neutral},
		now:     time.Now,
	}
}

// OnChange registers fn to be called after every Set. fn runs outside the
// board lock.
func (b *Board) OnChange(fn func(Status)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Board) Set(message string, sev Severity) {
	if sev == "" {
		sev = Neutral
	}
	b.mu.Lock()
	b.current = Status{Message: message, Severity: sev}
	fn := b.onChange
	st := b.current
	b.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (b *Board) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Board) Logf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Time: b.now(), Line: fmt.Sprintf(format, args...)})
}

// Entries returns a copy of the event log, oldest first.
func (b *Board) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
