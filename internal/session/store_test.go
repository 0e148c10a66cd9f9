// File: internal/session/store_test.go
package session_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/session"
)

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.json")
	store := session.NewStore(path, zap.NewNop())

	assert.False(t, store.Exists())

	st := &session.StorageState{Cookies: []session.Cookie{
		{
			Name:     "auth_token",
			Value:    "secret",
			Domain:   ".x.com",
			Path:     "/",
			Expires:  1790000000,
			HTTPOnly: true,
			Secure:   true,
			SameSite: "None",
		},
		{Name: "lang", Value: "en", Domain: ".x.com", Path: "/"},
	}}
	require.NoError(t, store.Save(st))
	assert.True(t, store.Exists())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, st.Cookies, loaded.Cookies)
}

func TestStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "auth.json")
	store := session.NewStore(path, zap.NewNop())
	require.NoError(t, store.Save(&session.StorageState{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(),
		"session file carries live credentials and must not be world readable")
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	missing := session.NewStore(filepath.Join(dir, "nope.json"), zap.NewNop())
	_, err := missing.Load()
	assert.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o600))
	_, err = session.NewStore(corrupt, zap.NewNop()).Load()
	assert.Error(t, err)
}

func TestCookieParams_Roundtrip(t *testing.T) {
	cdp := []*network.Cookie{
		{
			Name:     "auth_token",
			Value:    "secret",
			Domain:   ".x.com",
			Path:     "/",
			Expires:  1790000000,
			HTTPOnly: true,
			Secure:   true,
			SameSite: network.CookieSameSiteNone,
		},
	}

	st := session.FromCDP(cdp)
	require.Len(t, st.Cookies, 1)
	assert.Equal(t, "None", st.Cookies[0].SameSite)

	params := st.CookieParams()
	require.Len(t, params, 1)
	assert.Equal(t, "auth_token", params[0].Name)
	assert.Equal(t, ".x.com", params[0].Domain)
	assert.True(t, params[0].HTTPOnly)
	assert.Equal(t, network.CookieSameSiteNone, params[0].SameSite)
}

func TestIsLoginPage(t *testing.T) {
	assert.True(t, session.IsLoginPage("https://x.com/login"))
	assert.True(t, session.IsLoginPage("https://x.com/i/flow/login"))
	assert.True(t, session.IsLoginPage("https://x.com/account/access"))
	assert.False(t, session.IsLoginPage("https://x.com/i/bookmarks"))
	assert.False(t, session.IsLoginPage("https://x.com/home"))
}
