package sync

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
)

func writeLocalBookmarks(t *testing.T, rig *testRig, set BookmarkSet) string {
	t.Helper()

	path := config.BookmarksPath(rig.store.DataDir())
	data, err := json.Marshal(set)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestSyncBookmarks_UploadsWhenRemoteAbsent(t *testing.T) {
	rig := newTestRig(t, "")

	writeLocalBookmarks(t, rig, BookmarkSet{
		Groups: []BookmarkGroup{{ID: "g1", Name: "Work", Color: "#ff0000"}},
		Time:   100,
	})

	require.NoError(t, rig.engine.SyncBookmarks(context.Background()))

	data, ok := rig.dav.get(bookmarkFile)
	require.True(t, ok)

	var uploaded BookmarkSet
	require.NoError(t, json.Unmarshal(data, &uploaded))
	assert.Equal(t, int64(100), uploaded.Time)
	require.Len(t, uploaded.Groups, 1)
	assert.Equal(t, "Work", uploaded.Groups[0].Name)
}

func TestSyncBookmarks_HigherRemoteTimeWins(t *testing.T) {
	rig := newTestRig(t, "")

	localPath := writeLocalBookmarks(t, rig, BookmarkSet{
		Groups: []BookmarkGroup{{ID: "g1", Name: "Stale"}},
		Time:   100,
	})

	remoteSet := BookmarkSet{Groups: []BookmarkGroup{{ID: "g2", Name: "Fresh"}}, Time: 200}
	remoteData, err := json.Marshal(remoteSet)
	require.NoError(t, err)
	rig.dav.put(bookmarkFile, remoteData)

	require.NoError(t, rig.engine.SyncBookmarks(context.Background()))

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)

	var local BookmarkSet
	require.NoError(t, json.Unmarshal(data, &local))
	assert.Equal(t, int64(200), local.Time)
	require.Len(t, local.Groups, 1)
	assert.Equal(t, "Fresh", local.Groups[0].Name)
}

func TestSyncBookmarks_HigherLocalTimeWins(t *testing.T) {
	rig := newTestRig(t, "")

	writeLocalBookmarks(t, rig, BookmarkSet{
		Groups: []BookmarkGroup{{ID: "g1", Name: "Newer"}},
		Time:   300,
	})

	remoteData, err := json.Marshal(BookmarkSet{Time: 200})
	require.NoError(t, err)
	rig.dav.put(bookmarkFile, remoteData)

	require.NoError(t, rig.engine.SyncBookmarks(context.Background()))

	data, ok := rig.dav.get(bookmarkFile)
	require.True(t, ok)

	var uploaded BookmarkSet
	require.NoError(t, json.Unmarshal(data, &uploaded))
	assert.Equal(t, int64(300), uploaded.Time)
}

func TestSyncBookmarks_NothingToDo(t *testing.T) {
	rig := newTestRig(t, "")

	// No local file, no remote file.
	require.NoError(t, rig.engine.SyncBookmarks(context.Background()))

	_, ok := rig.dav.get(bookmarkFile)
	assert.False(t, ok)
}

func TestConfigSync_RoundTrip(t *testing.T) {
	rig := newTestRig(t, `{
		"env": {"os": "test"},
		"clipboardStore": {"content": {"autoSort": false}},
		"globalStore": {"cloudSync": {"isSyncing": true, "serverConfig": {"url": "u"}}}
	}`)

	require.NoError(t, rig.engine.UploadConfig(context.Background()))

	data, ok := rig.dav.get(configFile)
	require.True(t, ok)
	assert.NotContains(t, string(data), `"env"`)
	assert.NotContains(t, string(data), "isSyncing")
	assert.Contains(t, string(data), "autoSort")

	// Download overwrites the local document wholesale.
	rig.dav.put(configFile, []byte(`{"clipboardStore":{"content":{"autoSort":true}}}`))
	require.NoError(t, rig.engine.DownloadConfig(context.Background()))

	assert.True(t, rig.doc.Bool("clipboardStore.content.autoSort", false))
}
