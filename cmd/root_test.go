// File: cmd/root_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

const loginMarker = ".main-container .user .link-wrapper .channel"

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)

	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "xhs-cli version "+Version)

	out, err = execute(t, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err, "version must not load the config")
	assert.Contains(t, out, "xhs-cli version "+Version)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	h := resetForTest(t)

	_, err := execute(t, "status", "--offline", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.Empty(t, h.driver.Launches())
}

func TestRootCmd_ConfigFileAndFlags(t *testing.T) {
	h := resetForTest(t, browsertest.NewPage())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("browser:\n  headless: true\n  user_data_dir: /tmp/xhs-profile\n"), 0o600))

	_, err := execute(t, "status", "--config", cfgPath, "--headless=false")
	require.NoError(t, err)

	launches := h.driver.Launches()
	require.Len(t, launches, 1)
	assert.False(t, launches[0].Headless, "--headless overrides the config file")
	assert.Equal(t, "/tmp/xhs-profile", launches[0].UserDataDir)
}

func TestStatusOffline(t *testing.T) {
	h := resetForTest(t)

	out, err := execute(t, "status", "--offline", "--compact")

	require.NoError(t, err)
	res := gjson.Parse(out)
	assert.True(t, res.Get("success").Bool())
	assert.Equal(t, "status", res.Get("operation").String())
	assert.Equal(t, "logged_out", res.Get("data.status").String())
	assert.Equal(t, h.cookies, res.Get("data.cookieFile.path").String())
	assert.NotContains(t, out, "\n  ", "--compact prints a single line")
	assert.Empty(t, h.driver.Launches())
}

func TestFailedResultSetsExitError(t *testing.T) {
	h := resetForTest(t, browsertest.NewPage())

	out, err := execute(t, "notes", "--limit", "5")

	require.ErrorIs(t, err, ErrResultFailed)
	res := gjson.Parse(out)
	assert.False(t, res.Get("success").Bool())
	assert.Equal(t, string(xhs.CodeNotLoggedIn), res.Get("code").String())
	assert.NotEmpty(t, res.Get("error").String())
	requireAllClosed(t, h)
}

func TestSearchCommand(t *testing.T) {
	input := browsertest.NewElement("")
	page := browsertest.NewPage().
		Set("#search-input", input).
		SetEval("__INITIAL_STATE__", `{"search":{"feeds":[{"id":"66aa01","xsecToken":"tok","noteCard":{"displayTitle":"手冲"}}]}}`)
	h := resetForTest(t, page)

	out, err := execute(t, "search", "手冲", "咖啡")

	require.NoError(t, err)
	res := gjson.Parse(out)
	assert.True(t, res.Get("success").Bool(), res.Get("error").String())
	assert.Equal(t, "手冲 咖啡", res.Get("data.keyword").String())
	assert.Equal(t, "66aa01", res.Get("data.feeds.0.id").String())
	assert.Equal(t, []string{"手冲 咖啡"}, input.Typed())
	assert.Equal(t, []browser.Key{browser.KeyEnter}, input.Pressed())
	requireAllClosed(t, h)
}

func TestCommentCommand(t *testing.T) {
	trigger := browsertest.NewElement("说点什么...")
	editor := browsertest.NewElement("")
	submit := browsertest.NewElement("发送")
	page := browsertest.NewPage().
		Set(loginMarker, browsertest.NewElement("我")).
		Set("div.input-box div.content-edit span", trigger).
		Set("div.input-box div.content-edit p.content-input", editor).
		Set("div.bottom button.submit", submit)
	resetForTest(t, page)

	out, err := execute(t, "comment", "n1", "好看", "收藏了", "--xsec-token", "tok")

	require.NoError(t, err)
	assert.Equal(t, "好看 收藏了", gjson.Get(out, "data.text").String())
	assert.Equal(t, []string{"好看 收藏了"}, editor.Typed())
	assert.Equal(t, 1, submit.Clicks())
}

func TestCommandArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"delete without id", []string{"delete"}, "a note id is required"},
		{"delete with id and last", []string{"delete", "abc", "--last"}, "either a note id or --last"},
		{"detail without token", []string{"detail", "n1"}, "xsec-token"},
		{"publish image without images", []string{"publish", "image", "-t", "t", "-m", "c"}, "image"},
		{"search without keyword", []string{"search"}, "requires at least 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := resetForTest(t)
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, h.driver.Launches())
		})
	}
}

func TestPublishValidationFailureIsAResult(t *testing.T) {
	h := resetForTest(t)

	out, err := execute(t, "publish", "video", "-t", "title", "-m", "body", "--video", "missing.mp4", "--tags", "#a, b")

	require.ErrorIs(t, err, ErrResultFailed)
	assert.Equal(t, string(xhs.CodeValidation), gjson.Get(out, "code").String())
	assert.Empty(t, h.driver.Launches())
}
