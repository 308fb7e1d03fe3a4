package cookiestore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCookies() []Cookie {
	return []Cookie{
		{Name: "web_session", Value: "abc", Domain: ".xiaohongshu.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "Lax"},
		{Name: "a1", Value: "xyz", Domain: ".xiaohongshu.com", Path: "/", Expires: -1},
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cookies.json"))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cookies.json")
	s := New(path)

	require.NoError(t, s.Save(sampleCookies()))
	got, err := s.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(sampleCookies(), got); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "cookies.json"))
	require.NoError(t, s.Save(sampleCookies()))
	require.NoError(t, s.Save(sampleCookies()[:1]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cookies.json", entries[0].Name())
}

func TestConcurrentSavesNeverTearFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cookies.json"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(sampleCookies()))
		}()
	}
	wg.Wait()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestDeleteAndInfo(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cookies.json"))

	info, err := s.Info()
	require.NoError(t, err)
	assert.False(t, info.Exists)

	require.NoError(t, s.Save(sampleCookies()))
	info, err = s.Info()
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 2, info.CookieCount)

	removed, err := s.Delete()
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete()
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCookieExpired(t *testing.T) {
	now := time.Unix(2000, 0)
	assert.False(t, Cookie{Expires: -1}.Expired(now))
	assert.False(t, Cookie{Expires: 3000}.Expired(now))
	assert.True(t, Cookie{Expires: 1000}.Expired(now))
}
