// Package completion turns asynchronous UI transitions into a terminal
// outcome by polling indicator selectors on a page.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// State is a position in the completion state machine.
type State int

const (
	Running State = iota
	Succeeded
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	case TimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Indicator is one selector to watch. With MatchText set the element only
// counts when its text classifies as the category of the list it sits in.
type Indicator struct {
	Selector  string
	MatchText bool
}

// Indicators builds one indicator per candidate.
func Indicators(cands selector.Candidates, matchText bool) []Indicator {
	out := make([]Indicator, 0, len(cands))
	for _, c := range cands {
		out = append(out, Indicator{Selector: c, MatchText: matchText})
	}
	return out
}

// Config describes one wait.
type Config struct {
	Name         string
	Success      []Indicator
	Error        []Indicator
	Processing   []Indicator
	StillPresent []Indicator
	Patterns     Patterns
	Timeout      time.Duration
	PollInterval time.Duration
	// BusyInterval replaces PollInterval while a processing indicator is visible.
	BusyInterval time.Duration
}

func (c Config) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("completion %q: timeout must be positive", c.Name)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("completion %q: poll interval must be positive", c.Name)
	}
	return nil
}

// Observation is what one tick saw. Matched fields hold the selector that
// fired, or "" when nothing did.
type Observation struct {
	Success      string `json:"success,omitempty"`
	Error        string `json:"error,omitempty"`
	Processing   string `json:"processing,omitempty"`
	StillPresent string `json:"stillPresent,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Outcome is a successful terminal result.
type Outcome struct {
	State State
	// Implicit is set when success was inferred only from the source page's
	// markers disappearing.
	Implicit  bool
	Indicator string
	Text      string
	Elapsed   time.Duration
	Polls     int
}

// Error is returned for FAILED and TIMED_OUT.
type Error struct {
	Name    string
	State   State
	Message string
	Elapsed time.Duration
	Last    Observation
}

func (e *Error) Error() string {
	switch e.State {
	case TimedOut:
		return fmt.Sprintf("%s timed out after %s (last seen: %+v)", e.Name, e.Elapsed.Round(time.Millisecond), e.Last)
	default:
		return fmt.Sprintf("%s failed: %s", e.Name, e.Message)
	}
}

// IsTimeout reports whether err is a completion timeout.
func IsTimeout(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.State == TimedOut
}

// Machine runs completion waits.
type Machine struct {
	logger *zap.Logger
	engine *selector.Engine
	clock  clock.Clock
}

// NewMachine creates a machine that queries through engine and sleeps on c.
func NewMachine(logger *zap.Logger, engine *selector.Engine, c clock.Clock) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.New()
	}
	return &Machine{logger: logger.Named("completion"), engine: engine, clock: c}
}

// Await polls scope until cfg reaches a terminal state. Each tick checks, in
// order: error indicators, success indicators, absence of every StillPresent
// marker, then processing indicators to pick the next interval.
func (m *Machine) Await(ctx context.Context, scope browser.Scope, cfg Config) (Outcome, error) {
	if err := cfg.validate(); err != nil {
		return Outcome{}, err
	}
	if cfg.Patterns.empty() {
		cfg.Patterns = DefaultPatterns
	}
	busy := cfg.BusyInterval
	if busy <= 0 {
		busy = cfg.PollInterval
	}
	logger := m.logger.With(zap.String("wait", cfg.Name))
	start := m.clock.Now()
	polls := 0

	for {
		polls++
		obs, err := m.observe(ctx, scope, cfg)
		if err != nil {
			return Outcome{}, err
		}
		elapsed := m.clock.Now().Sub(start)

		if obs.Error != "" {
			logger.Warn("Error indicator observed.", zap.String("selector", obs.Error), zap.String("text", obs.Text))
			msg := obs.Text
			if msg == "" {
				msg = "error indicator " + obs.Error + " appeared"
			}
			return Outcome{}, &Error{Name: cfg.Name, State: Failed, Message: msg, Elapsed: elapsed, Last: obs}
		}
		if obs.Success != "" {
			logger.Debug("Success indicator observed.", zap.String("selector", obs.Success), zap.Int("polls", polls))
			return Outcome{State: Succeeded, Indicator: obs.Success, Text: obs.Text, Elapsed: elapsed, Polls: polls}, nil
		}
		if len(cfg.StillPresent) > 0 && obs.StillPresent == "" {
			logger.Debug("Source page markers gone, assuming success.", zap.Int("polls", polls))
			return Outcome{State: Succeeded, Implicit: true, Elapsed: elapsed, Polls: polls}, nil
		}

		if elapsed >= cfg.Timeout {
			logger.Warn("Completion wait timed out.", zap.Duration("elapsed", elapsed))
			return Outcome{}, &Error{Name: cfg.Name, State: TimedOut, Elapsed: elapsed, Last: obs}
		}

		interval := cfg.PollInterval
		if obs.Processing != "" {
			interval = busy
		}
		if remaining := cfg.Timeout - elapsed; interval > remaining {
			interval = remaining
		}
		if err := m.clock.Sleep(ctx, interval); err != nil {
			return Outcome{}, err
		}
	}
}

func (m *Machine) observe(ctx context.Context, scope browser.Scope, cfg Config) (Observation, error) {
	var obs Observation
	var err error

	if obs.Error, obs.Text, err = m.first(ctx, scope, cfg.Error, cfg.Patterns, CategoryError); err != nil {
		return obs, err
	}
	if obs.Error != "" {
		return obs, nil
	}
	if obs.Success, obs.Text, err = m.first(ctx, scope, cfg.Success, cfg.Patterns, CategorySuccess); err != nil {
		return obs, err
	}
	if obs.Success != "" {
		return obs, nil
	}
	var text string
	if obs.StillPresent, _, err = m.first(ctx, scope, cfg.StillPresent, cfg.Patterns, CategoryNone); err != nil {
		return obs, err
	}
	if obs.Processing, text, err = m.first(ctx, scope, cfg.Processing, cfg.Patterns, CategoryProcessing); err != nil {
		return obs, err
	}
	obs.Text = text
	return obs, nil
}

// first returns the first indicator present on scope. Text-matching
// indicators must classify as want.
func (m *Machine) first(ctx context.Context, scope browser.Scope, indicators []Indicator, patterns Patterns, want Category) (string, string, error) {
	for _, ind := range indicators {
		elements, _, err := m.engine.ResolveAll(ctx, scope, selector.Candidates{ind.Selector})
		if err != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			continue
		}
		for _, el := range elements {
			text, err := el.Text(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return "", "", ctx.Err()
				}
				if ind.MatchText {
					continue
				}
			}
			text = selector.Normalize(text)
			if ind.MatchText && patterns.Classify(text) != want {
				continue
			}
			return ind.Selector, text, nil
		}
	}
	return "", "", nil
}
