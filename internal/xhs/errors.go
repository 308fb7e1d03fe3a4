// File: internal/xhs/errors.go
package xhs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/completion"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// ErrNoteNotFound is wrapped by DeleteError when no card carries the id.
var ErrNoteNotFound = errors.New("note not found")

// ValidationError rejects input before any browser work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotLoggedInError means the operation needs a session and none is active.
type NotLoggedInError struct {
	Operation string
	URL       string
}

func (e *NotLoggedInError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s requires login (page: %s)", e.Operation, e.URL)
	}
	return fmt.Sprintf("%s requires login", e.Operation)
}

// StepError carries where a workflow stopped: the step, the selectors that
// were tried and the page URL. PublishError, DeleteError and
// FeedParsingError share it.
type StepError struct {
	Step       string
	Candidates selector.Candidates
	URL        string
	Err        error
}

func (e *StepError) describe(kind string) string {
	var b strings.Builder
	b.WriteString(kind)
	if e.Step != "" {
		b.WriteString(" at ")
		b.WriteString(e.Step)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.URL != "" {
		b.WriteString(" (page: ")
		b.WriteString(e.URL)
		b.WriteString(")")
	}
	return b.String()
}

// PublishError wraps any failure of PublishImage or PublishVideo.
type PublishError struct{ StepError }

func (e *PublishError) Error() string { return e.describe("publish failed") }
func (e *PublishError) Unwrap() error { return e.Err }

// DeleteError wraps any failure of DeleteNote or DeleteLastNote.
type DeleteError struct {
	StepError
	NoteID string
}

func (e *DeleteError) Error() string { return e.describe("delete failed") }
func (e *DeleteError) Unwrap() error { return e.Err }

// FeedParsingError means page state or markup could not be read.
type FeedParsingError struct{ StepError }

func (e *FeedParsingError) Error() string { return e.describe("could not parse page") }
func (e *FeedParsingError) Unwrap() error { return e.Err }

// CommentError wraps a failure while posting a comment.
type CommentError struct {
	StepError
	FeedID string
}

func (e *CommentError) Error() string { return e.describe("comment failed") }
func (e *CommentError) Unwrap() error { return e.Err }

// FeedNotFoundError means the detail page did not contain the requested note.
type FeedNotFoundError struct {
	FeedID    string
	Available []string
}

func (e *FeedNotFoundError) Error() string {
	return fmt.Sprintf("feed %s not found in note details", e.FeedID)
}

// LoginTimeoutError is recoverable: retry with a longer timeout.
type LoginTimeoutError struct {
	Timeout time.Duration
	URL     string
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login timed out after %s; complete the QR scan or manual login in the browser window", e.Timeout)
}

// LoginFailedError means the wait ended but the session could not be verified.
type LoginFailedError struct {
	Reason string
}

func (e *LoginFailedError) Error() string {
	return "login failed: " + e.Reason
}

// stepErr builds a StepError, lifting candidates out of a selector miss.
func stepErr(step, url string, err error) StepError {
	se := StepError{Step: step, URL: url, Err: err}
	var nf *selector.NotFoundError
	if errors.As(err, &nf) {
		se.Candidates = nf.Candidates
	}
	return se
}

// Code is the stable, machine-readable outcome of a workflow.
type Code string

const (
	CodeOK               Code = "ok"
	CodeValidation       Code = "validation_failed"
	CodeBrowserLaunch    Code = "browser_launch_failed"
	CodeNavigation       Code = "navigation_failed"
	CodeNotLoggedIn      Code = "not_logged_in"
	CodeSelectorNotFound Code = "selector_not_found"
	CodeAmbiguous        Code = "ambiguous_outcome"
	CodeRejected         Code = "rejected_by_platform"
	CodeNotFound         Code = "not_found"
	CodeLoginTimeout     Code = "login_timeout"
	CodeLoginFailed      Code = "login_failed"
	CodeParse            Code = "parse_failed"
	CodeDownload         Code = "download_failed"
	CodeCanceled         Code = "canceled"
	CodeFailed           Code = "operation_failed"
)

// Classify maps err to a Code. More specific causes win over the wrapper
// they travel in.
func Classify(err error) Code {
	if err == nil {
		return CodeOK
	}
	var (
		ve  *ValidationError
		le  *browser.LaunchError
		ne  *browser.NavigationError
		nli *NotLoggedInError
		ce  *completion.Error
		lte *LoginTimeoutError
		lfe *LoginFailedError
		fnf *FeedNotFoundError
		fpe *FeedParsingError
		de  *media.DownloadError
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &de):
		return CodeDownload
	case errors.As(err, &le):
		return CodeBrowserLaunch
	case errors.As(err, &nli):
		return CodeNotLoggedIn
	case errors.As(err, &lte):
		return CodeLoginTimeout
	case errors.As(err, &lfe):
		return CodeLoginFailed
	case errors.As(err, &ce):
		if ce.State == completion.Failed {
			return CodeRejected
		}
		return CodeAmbiguous
	case errors.Is(err, ErrNoteNotFound), errors.As(err, &fnf):
		return CodeNotFound
	case errors.As(err, &ne):
		if errors.Is(err, context.Canceled) {
			return CodeCanceled
		}
		return CodeNavigation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case selector.IsNotFound(err):
		return CodeSelectorNotFound
	case errors.As(err, &fpe):
		return CodeParse
	}
	return CodeFailed
}
