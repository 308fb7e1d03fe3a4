// File: internal/service/components_test.go
package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/browser/browsertest"
)

func TestComponentsShutdown(t *testing.T) {
	t.Run("closes pages left open", func(t *testing.T) {
		driver := browsertest.NewDriver()
		components, err := NewComponentFactory(WithDriver(driver)).Create(context.Background(), testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		page, err := components.Manager.NewPage(context.Background(), browser.PageOptions{Persistent: true})
		require.NoError(t, err)
		require.Equal(t, 1, components.Manager.OpenPages())

		components.Shutdown(context.Background())

		assert.Zero(t, components.Manager.OpenPages())
		assert.Equal(t, 1, page.(*browsertest.Page).Closed())
		for _, inst := range driver.Instances() {
			assert.Equal(t, 1, inst.Closed())
		}

		// A second call has nothing left to release.
		components.Shutdown(context.Background())
		assert.Equal(t, 1, page.(*browsertest.Page).Closed())
	})

	t.Run("runs after the command context is canceled", func(t *testing.T) {
		components, err := NewComponentFactory(WithDriver(browsertest.NewDriver())).Create(context.Background(), testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = components.Manager.NewPage(context.Background(), browser.PageOptions{Persistent: true})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		components.Shutdown(ctx)

		assert.Zero(t, components.Manager.OpenPages())
	})

	t.Run("zero value", func(t *testing.T) {
		assert.NotPanics(t, func() { (&Components{}).Shutdown(context.Background()) })
	})
}
