// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/xhs-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/observability"
	"github.com/xkilldash9x/xhs-cli/internal/service"
)

// harness runs command lines against a fake browser.
type harness struct {
	driver  *browsertest.Driver
	clock   *clock.Fake
	cookies string
}

// resetForTest provides the single source of truth for resetting test state.
// The fake driver serves pages in order.
func resetForTest(t *testing.T, pages ...*browsertest.Page) *harness {
	t.Helper()

	// 1. Reset package-level flag variables.
	cfgFile, execPath, compact = "", "", false

	// 2. Keep config lookups inside the test.
	dir := t.TempDir()
	h := &harness{
		driver:  browsertest.NewDriver(pages...),
		clock:   clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		cookies: filepath.Join(dir, "cookies.json"),
	}
	t.Setenv("XHS_PATHS_COOKIES_FILE", h.cookies)
	t.Setenv("XHS_MEDIA_DOWNLOAD_DIR", filepath.Join(dir, "images"))
	t.Setenv("XHS_XHS_REQUEST_DELAY", "0s")
	t.Chdir(dir)

	// 3. Silence the logger.
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})

	// 4. Swap in the fake browser.
	previous := componentFactory
	componentFactory = service.NewComponentFactory(service.WithDriver(h.driver), service.WithClock(h.clock))
	t.Cleanup(func() {
		componentFactory = previous
		observability.ResetForTest()
	})
	return h
}

// execute runs one command line on a fresh tree and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func requireAllClosed(t *testing.T, h *harness) {
	t.Helper()
	for _, p := range h.driver.Pages() {
		require.Equal(t, 1, p.Closed(), "page %s", p.ID())
	}
	for _, inst := range h.driver.Instances() {
		require.Equal(t, 1, inst.Closed())
	}
}
