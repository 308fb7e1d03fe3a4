package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
)

// NotFoundError is returned when no candidate matched.
type NotFoundError struct {
	Candidates Candidates
	// Err joins query failures seen while trying the candidates, if any.
	Err error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no element matched any of %d candidate(s): %s", len(e.Candidates), strings.Join(e.Candidates, " | "))
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Engine resolves candidate lists against a page or element scope. The first
// descriptor producing a usable element wins; later ones are not consulted.
type Engine struct {
	logger *zap.Logger
	clock  clock.Clock
}

// NewEngine creates an engine. A nil clock uses the wall clock.
func NewEngine(logger *zap.Logger, c clock.Clock) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.New()
	}
	return &Engine{logger: logger.Named("selector"), clock: c}
}

// Resolve returns the first element of the first matching descriptor and the
// descriptor that matched.
func (e *Engine) Resolve(ctx context.Context, scope browser.Scope, candidates Candidates) (browser.Element, string, error) {
	return e.resolve(ctx, scope, candidates, false)
}

// ResolveVisible is Resolve restricted to rendered elements inside the
// viewport. A descriptor whose matches are all hidden is skipped.
func (e *Engine) ResolveVisible(ctx context.Context, scope browser.Scope, candidates Candidates) (browser.Element, string, error) {
	return e.resolve(ctx, scope, candidates, true)
}

func (e *Engine) resolve(ctx context.Context, scope browser.Scope, candidates Candidates, visibleOnly bool) (browser.Element, string, error) {
	var errs []error
	for _, raw := range candidates {
		d := Parse(raw)
		elements, err := e.query(ctx, scope, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		for _, el := range elements {
			if visibleOnly {
				visible, err := el.Visible(ctx)
				if err != nil || !visible {
					continue
				}
			}
			e.logger.Debug("Selector matched.", zap.String("selector", raw), zap.Bool("visible_only", visibleOnly))
			return el, raw, nil
		}
	}
	return nil, "", &NotFoundError{Candidates: candidates, Err: errors.Join(errs...)}
}

// ResolveAll returns every element of the first descriptor matching at least one.
func (e *Engine) ResolveAll(ctx context.Context, scope browser.Scope, candidates Candidates) ([]browser.Element, string, error) {
	var errs []error
	for _, raw := range candidates {
		elements, err := e.query(ctx, scope, Parse(raw))
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if len(elements) > 0 {
			e.logger.Debug("Selector matched.", zap.String("selector", raw), zap.Int("count", len(elements)))
			return elements, raw, nil
		}
	}
	return nil, "", &NotFoundError{Candidates: candidates, Err: errors.Join(errs...)}
}

// Exists reports whether any candidate currently matches.
func (e *Engine) Exists(ctx context.Context, scope browser.Scope, candidates Candidates) bool {
	_, _, err := e.Resolve(ctx, scope, candidates)
	return err == nil
}

// WaitOptions bound Wait.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
	Visible  bool
}

// Wait polls Resolve (or ResolveVisible) until a candidate matches or the
// timeout elapses. It always tries at least once.
func (e *Engine) Wait(ctx context.Context, scope browser.Scope, candidates Candidates, opts WaitOptions) (browser.Element, string, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	start := e.clock.Now()
	for {
		el, matched, err := e.resolve(ctx, scope, candidates, opts.Visible)
		if err == nil || !IsNotFound(err) {
			return el, matched, err
		}
		if e.clock.Now().Sub(start) >= opts.Timeout {
			return nil, "", err
		}
		if err := e.clock.Sleep(ctx, interval); err != nil {
			return nil, "", err
		}
	}
}

func (e *Engine) query(ctx context.Context, scope browser.Scope, d Descriptor) ([]browser.Element, error) {
	elements, err := scope.QueryAll(ctx, d.CSS)
	if err != nil {
		return nil, err
	}
	if d.Mode == TextAny {
		return elements, nil
	}
	kept := elements[:0:0]
	for _, el := range elements {
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if d.MatchText(text) {
			kept = append(kept, el)
		}
	}
	return kept, nil
}
