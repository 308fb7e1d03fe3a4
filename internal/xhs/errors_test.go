// File: internal/xhs/errors_test.go
package xhs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/completion"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

func TestClassify(t *testing.T) {
	notFound := &selector.NotFoundError{Candidates: selector.Candidates{".a", ".b"}}
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeOK},
		{"validation inside publish", &PublishError{StepError{Step: "validate", Err: invalid("title", "too wide")}}, CodeValidation},
		{"download", &media.DownloadError{Total: 2, Failures: []media.Failure{{URL: "u", Err: errors.New("x")}}}, CodeDownload},
		{"launch", &browser.LaunchError{ExecPath: "/nope", Err: errors.New("missing")}, CodeBrowserLaunch},
		{"not logged in", fmt.Errorf("wrapped: %w", &NotLoggedInError{Operation: "feeds"}), CodeNotLoggedIn},
		{"login timeout", &LoginTimeoutError{Timeout: time.Minute}, CodeLoginTimeout},
		{"login failed", &LoginFailedError{Reason: "gone"}, CodeLoginFailed},
		{"completion failed", &PublishError{StepError{Err: &completion.Error{State: completion.Failed, Message: "失败"}}}, CodeRejected},
		{"completion timeout", &PublishError{StepError{Err: &completion.Error{State: completion.TimedOut}}}, CodeAmbiguous},
		{"note not found", &DeleteError{StepError: StepError{Err: ErrNoteNotFound}}, CodeNotFound},
		{"feed not found", &FeedNotFoundError{FeedID: "x"}, CodeNotFound},
		{"navigation", &browser.NavigationError{URL: "u", Attempts: 3, Err: errors.New("reset")}, CodeNavigation},
		{"navigation canceled", &browser.NavigationError{URL: "u", Err: context.Canceled}, CodeCanceled},
		{"deadline", fmt.Errorf("step: %w", context.DeadlineExceeded), CodeCanceled},
		{"selector", &PublishError{StepError{Step: "find submit", Err: notFound}}, CodeSelectorNotFound},
		{"comment selector", &CommentError{StepError: StepError{Err: notFound}}, CodeSelectorNotFound},
		{"parse", &FeedParsingError{StepError{Err: errors.New("bad json")}}, CodeParse},
		{"other", errors.New("boom"), CodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStepErrorCarriesCandidates(t *testing.T) {
	nf := &selector.NotFoundError{Candidates: selector.Candidates{"button.submit"}}
	err := &PublishError{stepErr("find submit button", "https://creator.example/publish", nf)}

	assert.Equal(t, selector.Candidates{"button.submit"}, err.Candidates)
	assert.Equal(t, "publish failed at find submit button: "+nf.Error()+" (page: https://creator.example/publish)", err.Error())
	assert.True(t, selector.IsNotFound(err))
}

func TestNewResult(t *testing.T) {
	start := epoch
	ok := newResult("op", start, start.Add(3*time.Second), "data", "done", nil)
	assert.True(t, ok.Success)
	assert.Equal(t, CodeOK, ok.Code)
	assert.Equal(t, 3*time.Second, ok.Duration())
	assert.NotEmpty(t, ok.RunID)

	failed := newResult("op", start, start, nil, "", &completion.Error{Name: "image publish", State: completion.TimedOut})
	assert.False(t, failed.Success)
	assert.True(t, failed.Ambiguous())
	assert.Equal(t, failed.Error, failed.Message)
	assert.NotEqual(t, ok.RunID, failed.RunID)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(zaptest.NewLogger(t), config.NewDefaultConfig(), Deps{})
	require.Error(t, err)

	catalog, err := selector.ParseCatalog([]byte("version: 1\nroles:\n  login_ok: ['.x']\n"))
	require.NoError(t, err)
	f := newFixture(t)
	_, err = NewService(nil, f.cfg, Deps{Manager: f.manager, Catalog: catalog, Session: f.session})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing roles")
}
