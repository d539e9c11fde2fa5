package rpa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
)

func TestRegistryLoad(t *testing.T) {
	dir := scriptsDir(t, "weibo", "bilibili", "orphan", "youtube")
	r := NewRegistry(dir, platforms.Default(), logging.Discard())
	r.Load()

	assert.Equal(t, []model.Platform{"bilibili", "weibo"}, r.List())
	assert.True(t, r.IsSupported(model.PlatformBilibili))
	assert.False(t, r.IsSupported(model.PlatformZhihu), "no script on disk")
	assert.False(t, r.IsSupported(model.PlatformYouTube), "direct api platform")
	assert.False(t, r.IsSupported("orphan"))
}

func TestRegistryLoadMissingDir(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent"), platforms.Default(), logging.Discard())
	r.Load()
	assert.Empty(t, r.List())
}

func TestRegistryIsReadOnlyAfterLoad(t *testing.T) {
	dir := scriptsDir(t, "weibo")
	r := NewRegistry(dir, platforms.Default(), logging.Discard())
	r.Load()
	require.True(t, r.IsSupported(model.PlatformWeibo))

	require.NoError(t, os.Remove(filepath.Join(dir, "weibo.js")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zhihu.js"), []byte("//"), 0o644))
	r.Load()

	assert.Equal(t, []model.Platform{"weibo"}, r.List(), "second load keeps the set")
	assert.Equal(t, []model.Platform{"zhihu"}, r.Scan())
	assert.Equal(t, []model.Platform{"weibo"}, r.List(), "scan does not touch the set")
	assert.False(t, r.IsSupported(model.PlatformZhihu))
}

func TestRegistryScript(t *testing.T) {
	dir := scriptsDir(t, "bilibili")
	r := NewRegistry(dir, platforms.Default(), logging.Discard())
	r.Load()

	src, err := r.Script(model.PlatformBilibili)
	require.NoError(t, err)
	assert.Contains(t, src, "function renderVideo")

	// deleted after load: reported as a missing script, not a read error
	require.NoError(t, os.Remove(filepath.Join(dir, "bilibili.js")))
	_, err = r.Script(model.PlatformBilibili)
	assert.ErrorIs(t, err, ErrScriptNotFound)

	_, err = r.Script(model.PlatformYouTube)
	assert.ErrorIs(t, err, ErrScriptNotFound)
}
