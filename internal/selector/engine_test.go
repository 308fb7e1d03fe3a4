package selector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xhs-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

func newEngine(t *testing.T) (*selector.Engine, *clock.Fake) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return selector.NewEngine(zaptest.NewLogger(t), fc), fc
}

func TestResolveOrderDeterminism(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	first := browsertest.NewElement("first")
	second := browsertest.NewElement("second")
	page := browsertest.NewPage().
		Set(".b", second).
		Set(".a", first)

	for i := 0; i < 20; i++ {
		el, matched, err := engine.Resolve(ctx, page, selector.Candidates{".missing", ".a", ".b"})
		require.NoError(t, err)
		assert.Same(t, first, el)
		assert.Equal(t, ".a", matched)
	}

	// Reversing the list flips the winner even though both match.
	el, matched, err := engine.Resolve(ctx, page, selector.Candidates{".b", ".a"})
	require.NoError(t, err)
	assert.Same(t, second, el)
	assert.Equal(t, ".b", matched)
}

func TestResolveNotFound(t *testing.T) {
	engine, _ := newEngine(t)
	cands := selector.Candidates{".x", ".y"}

	_, _, err := engine.Resolve(context.Background(), browsertest.NewPage(), cands)
	var nf *selector.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, cands, nf.Candidates)
	assert.True(t, selector.IsNotFound(err))
}

func TestResolveSkipsFailingQueries(t *testing.T) {
	engine, _ := newEngine(t)
	target := browsertest.NewElement("ok")
	page := browsertest.NewPage().
		FailQuery(".broken", errors.New("invalid selector")).
		Set(".good", target)

	el, matched, err := engine.Resolve(context.Background(), page, selector.Candidates{".broken", ".good"})
	require.NoError(t, err)
	assert.Same(t, target, el)
	assert.Equal(t, ".good", matched)

	_, _, err = engine.Resolve(context.Background(), page, selector.Candidates{".broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid selector")
}

func TestResolveVisible(t *testing.T) {
	engine, _ := newEngine(t)
	hiddenDelete := browsertest.NewElement("删除").Hidden()
	menuDelete := browsertest.NewElement("删除")
	page := browsertest.NewPage().
		Set(".control.data-del", hiddenDelete).
		Set("button", browsertest.NewElement("编辑"), menuDelete)

	cands := selector.Candidates{".control.data-del", `button:has-text("删除")`}

	el, matched, err := engine.Resolve(context.Background(), page, cands)
	require.NoError(t, err)
	assert.Same(t, hiddenDelete, el, "plain resolve accepts hidden matches")
	assert.Equal(t, ".control.data-del", matched)

	el, matched, err = engine.ResolveVisible(context.Background(), page, cands)
	require.NoError(t, err)
	assert.Same(t, menuDelete, el)
	assert.Equal(t, `button:has-text("删除")`, matched)
}

func TestResolveAll(t *testing.T) {
	engine, _ := newEngine(t)
	a, b := browsertest.NewElement("a"), browsertest.NewElement("b")
	page := browsertest.NewPage().
		Set("div.note", a, b).
		Set("article", browsertest.NewElement("c"))

	els, matched, err := engine.ResolveAll(context.Background(), page, selector.Candidates{"div.note", "article"})
	require.NoError(t, err)
	assert.Len(t, els, 2)
	assert.Equal(t, "div.note", matched)
}

func TestResolveWithinElementScope(t *testing.T) {
	engine, _ := newEngine(t)
	inner := browsertest.NewElement("标题")
	card := browsertest.NewElement("card").Child(`[class*="title"]`, inner)

	el, _, err := engine.Resolve(context.Background(), card, selector.Candidates{`[class*="title"]`})
	require.NoError(t, err)
	assert.Same(t, inner, el)
}

func TestWait(t *testing.T) {
	t.Run("finds an element that appears later", func(t *testing.T) {
		engine, fc := newEngine(t)
		page := browsertest.NewPage()
		target := browsertest.NewElement("editor")
		fc.AfterFunc(3*time.Second, func() { page.Set(".tiptap", target) })

		el, _, err := engine.Wait(context.Background(), page, selector.Candidates{".tiptap"},
			selector.WaitOptions{Timeout: 15 * time.Second, Interval: time.Second})
		require.NoError(t, err)
		assert.Same(t, target, el)
		assert.Len(t, fc.Sleeps(), 3)
	})

	t.Run("times out with not found", func(t *testing.T) {
		engine, fc := newEngine(t)
		start := fc.Now()
		_, _, err := engine.Wait(context.Background(), browsertest.NewPage(), selector.Candidates{".never"},
			selector.WaitOptions{Timeout: 2 * time.Second, Interval: 500 * time.Millisecond})
		assert.True(t, selector.IsNotFound(err))
		assert.Equal(t, 2*time.Second, fc.Elapsed(start))
	})

	t.Run("zero timeout tries once", func(t *testing.T) {
		engine, fc := newEngine(t)
		_, _, err := engine.Wait(context.Background(), browsertest.NewPage(), selector.Candidates{".never"}, selector.WaitOptions{})
		assert.True(t, selector.IsNotFound(err))
		assert.Empty(t, fc.Sleeps())
	})

	t.Run("cancelled context", func(t *testing.T) {
		engine, _ := newEngine(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := engine.Wait(ctx, browsertest.NewPage(), selector.Candidates{".x"}, selector.WaitOptions{Timeout: time.Minute})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
