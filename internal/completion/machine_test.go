package completion_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xhs-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/completion"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMachine(t *testing.T) (*completion.Machine, *clock.Fake) {
	fc := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	engine := selector.NewEngine(zaptest.NewLogger(t), fc)
	return completion.NewMachine(zaptest.NewLogger(t), engine, fc), fc
}

func publishConfig() completion.Config {
	return completion.Config{
		Name:         "publish",
		Success:      append(completion.Indicators(selector.Candidates{".publish-success"}, false), completion.Indicators(selector.Candidates{".toast"}, true)...),
		Error:        append(completion.Indicators(selector.Candidates{".publish-error"}, false), completion.Indicators(selector.Candidates{".toast"}, true)...),
		StillPresent: completion.Indicators(selector.Candidates{"div.upload-content", "div.submit"}, false),
		Processing:   completion.Indicators(selector.Candidates{".upload-progress"}, false),
		Patterns:     completion.DefaultPatterns,
		Timeout:      60 * time.Second,
		PollInterval: time.Second,
		BusyInterval: 3 * time.Second,
	}
}

// sourcePage is still showing the publish form.
func sourcePage() *browsertest.Page {
	return browsertest.NewPage().Set("div.submit", browsertest.NewElement("发布"))
}

func TestAwaitExplicitSuccess(t *testing.T) {
	m, fc := newMachine(t)
	page := sourcePage()
	fc.AfterFunc(4*time.Second, func() {
		page.Set(".publish-success", browsertest.NewElement("发布成功"))
	})

	out, err := m.Await(context.Background(), page, publishConfig())
	require.NoError(t, err)
	assert.Equal(t, completion.Succeeded, out.State)
	assert.False(t, out.Implicit)
	assert.Equal(t, ".publish-success", out.Indicator)
	assert.Equal(t, 5, out.Polls)
	assert.Equal(t, 4*time.Second, out.Elapsed)
}

func TestAwaitErrorBeatsSuccessAndLeftPage(t *testing.T) {
	m, fc := newMachine(t)
	page := sourcePage()
	// In the same tick: a success marker, an error marker and the form gone.
	fc.AfterFunc(2*time.Second, func() {
		page.Set(".publish-success", browsertest.NewElement("ok"))
		page.Set(".publish-error", browsertest.NewElement("内容违规"))
		page.Remove("div.submit")
	})

	_, err := m.Await(context.Background(), page, publishConfig())
	var ce *completion.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, completion.Failed, ce.State)
	assert.Equal(t, "内容违规", ce.Message)
	assert.Equal(t, ".publish-error", ce.Last.Error)
}

func TestAwaitToastClassification(t *testing.T) {
	t.Run("success toast", func(t *testing.T) {
		m, _ := newMachine(t)
		page := sourcePage().Set(".toast", browsertest.NewElement("发布成功"))
		out, err := m.Await(context.Background(), page, publishConfig())
		require.NoError(t, err)
		assert.Equal(t, ".toast", out.Indicator)
		assert.Equal(t, "发布成功", out.Text)
	})

	t.Run("error toast", func(t *testing.T) {
		m, _ := newMachine(t)
		page := sourcePage().Set(".toast", browsertest.NewElement("发布失败"))
		_, err := m.Await(context.Background(), page, publishConfig())
		var ce *completion.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, completion.Failed, ce.State)
	})

	t.Run("neutral toast is ignored", func(t *testing.T) {
		m, _ := newMachine(t)
		page := sourcePage().Set(".toast", browsertest.NewElement("欢迎回来"))
		cfg := publishConfig()
		cfg.Timeout = 3 * time.Second
		_, err := m.Await(context.Background(), page, cfg)
		assert.True(t, completion.IsTimeout(err))
	})
}

func TestAwaitImplicitSuccess(t *testing.T) {
	m, fc := newMachine(t)
	page := sourcePage()
	fc.AfterFunc(3*time.Second, func() { page.Remove("div.submit") })

	out, err := m.Await(context.Background(), page, publishConfig())
	require.NoError(t, err)
	assert.True(t, out.Implicit)
	assert.Equal(t, completion.Succeeded, out.State)
}

func TestAwaitNoStillPresentNeverImplicit(t *testing.T) {
	m, _ := newMachine(t)
	cfg := publishConfig()
	cfg.StillPresent = nil
	cfg.Timeout = 5 * time.Second

	_, err := m.Await(context.Background(), browsertest.NewPage(), cfg)
	assert.True(t, completion.IsTimeout(err), "an empty page is not success without StillPresent markers")
}

func TestAwaitTimeoutIsNeverSuccess(t *testing.T) {
	m, fc := newMachine(t)
	start := fc.Now()
	page := sourcePage().Set(".upload-progress", browsertest.NewElement("上传中 10%"))

	out, err := m.Await(context.Background(), page, publishConfig())
	assert.Equal(t, completion.Outcome{}, out)
	var ce *completion.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, completion.TimedOut, ce.State)
	assert.Equal(t, 60*time.Second, ce.Elapsed)
	assert.Equal(t, ".upload-progress", ce.Last.Processing)
	assert.Equal(t, "div.submit", ce.Last.StillPresent)
	assert.Equal(t, 60*time.Second, fc.Elapsed(start))
	assert.Contains(t, err.Error(), "timed out")
}

func TestAwaitBusyInterval(t *testing.T) {
	m, fc := newMachine(t)
	page := sourcePage().Set(".upload-progress", browsertest.NewElement("处理中"))
	fc.AfterFunc(5*time.Second, func() { page.Remove(".upload-progress") })
	fc.AfterFunc(7*time.Second, func() { page.Set(".publish-success", browsertest.NewElement("done")) })

	_, err := m.Await(context.Background(), page, publishConfig())
	require.NoError(t, err)
	// Busy polling while processing, then the normal interval.
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, time.Second}, fc.Sleeps())
}

func TestAwaitInvalidConfig(t *testing.T) {
	m, _ := newMachine(t)
	_, err := m.Await(context.Background(), browsertest.NewPage(), completion.Config{Name: "bad"})
	assert.Error(t, err)
	_, err = m.Await(context.Background(), browsertest.NewPage(), completion.Config{Name: "bad", Timeout: time.Second})
	assert.Error(t, err)
}

func TestAwaitCancelled(t *testing.T) {
	m, _ := newMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Await(ctx, sourcePage(), publishConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
