package sync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
)

// decodeIndex parses the uploaded sync-data.json from the fake server.
func decodeIndex(t *testing.T, dav *fakeDAV) []store.SyncItem {
	t.Helper()

	data, ok := dav.get(indexFile)
	require.True(t, ok, "index not uploaded")

	var items []store.SyncItem
	require.NoError(t, json.Unmarshal(data, &items))

	return items
}

func TestRunCycle_UploadsLocalRows(t *testing.T) {
	rig := newTestRig(t, "")

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "hello", Count: 5})
	require.NoError(t, err)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Empty(t, report.Errors)

	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "hello", items[0].Value)

	e, err := rig.store.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSynced, e.SyncStatus)
	assert.False(t, rig.store.Tracker.IsChanged(id))

	assert.NotZero(t, rig.doc.LastSyncTime())
}

func TestRunCycle_DownloadsRemoteRows(t *testing.T) {
	rig := newTestRig(t, "")

	remote := []store.SyncItem{{ID: "r1", Type: store.TypeText, Value: "from another device", Time: 1111}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)

	e, err := rig.store.GetByID("r1")
	require.NoError(t, err)
	assert.Equal(t, "from another device", e.Value)
	assert.Equal(t, store.StatusSynced, e.SyncStatus)
}

func TestRunCycle_DeletePropagation(t *testing.T) {
	rig := newTestRig(t, "")

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "doomed", Count: 6})
	require.NoError(t, err)

	// First cycle uploads it.
	_, err = rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, decodeIndex(t, rig.dav), 1)

	// Soft delete, then sync again: the index shrinks and the local row is
	// hard-deleted.
	require.NoError(t, rig.store.SoftDelete(id))

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	assert.Empty(t, decodeIndex(t, rig.dav))

	_, err = rig.store.GetByID(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunCycle_NeverSyncedTombstonePurgedLocally(t *testing.T) {
	rig := newTestRig(t, "")

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "local only", Count: 10})
	require.NoError(t, err)
	require.NoError(t, rig.store.SoftDelete(id))

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)

	// Purged locally with zero remote writes.
	_, err = rig.store.GetByID(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, rig.dav.writeCount())
}

func TestRunCycle_NoChangesPerformsZeroWrites(t *testing.T) {
	rig := newTestRig(t, "")

	_, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "steady", Count: 6})
	require.NoError(t, err)

	_, err = rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	writesAfterFirst := rig.dav.writeCount()

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Uploaded)
	assert.Zero(t, report.Downloaded)
	assert.Zero(t, report.Deleted)

	assert.Equal(t, writesAfterFirst, rig.dav.writeCount(), "second cycle must not write")
}

func TestRunCycle_ConflictRemoteWins(t *testing.T) {
	rig := newTestRig(t, `{"globalStore":{"cloudSync":{"syncModeConfig":{"conflictResolution":"remote"}}}}`)

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "local version", Count: 13})
	require.NoError(t, err)

	remote := []store.SyncItem{{ID: id, Type: store.TypeText, Value: "remote version", Time: 999}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)

	_, err = rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	e, err := rig.store.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "remote version", e.Value)
	assert.Equal(t, store.StatusSynced, e.SyncStatus)
	assert.False(t, rig.store.Tracker.IsChanged(id))

	// The remote entry survives in the index untouched.
	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, "remote version", items[0].Value)
}

func TestRunCycle_ConflictLocalWins(t *testing.T) {
	rig := newTestRig(t, `{"globalStore":{"cloudSync":{"syncModeConfig":{"conflictResolution":"local"}}}}`)

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "local version", Count: 13})
	require.NoError(t, err)

	remote := []store.SyncItem{{ID: id, Type: store.TypeText, Value: "remote version", Time: 999}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)

	_, err = rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, "local version", items[0].Value)
}

func TestRunCycle_ConflictMergeHigherTimeWins(t *testing.T) {
	rig := newTestRig(t, "")

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "newer local", Count: 11})
	require.NoError(t, err)

	// Remote copy is far in the past; local row's insert time is now.
	remote := []store.SyncItem{{ID: id, Type: store.TypeText, Value: "older remote", Time: 1000}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)

	_, err = rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, "newer local", items[0].Value)
}

func TestRunCycle_ConflictManualDefers(t *testing.T) {
	rig := newTestRig(t, `{"globalStore":{"cloudSync":{"syncModeConfig":{"conflictResolution":"manual"}}}}`)

	id, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "mine", Count: 4})
	require.NoError(t, err)

	remote := []store.SyncItem{{ID: id, Type: store.TypeText, Value: "theirs", Time: 999}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, report.Conflicts)

	// Both copies kept: local row untouched and still pending.
	e, err := rig.store.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "mine", e.Value)
	assert.NotEqual(t, store.StatusSynced, e.SyncStatus)

	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, "theirs", items[0].Value)
}

func TestRunCycle_OnlyFavoritesFilter(t *testing.T) {
	rig := newTestRig(t, `{"globalStore":{"cloudSync":{"syncModeConfig":{"onlyFavorites":true}}}}`)

	_, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "plain", Count: 5})
	require.NoError(t, err)

	favID, _, err := rig.store.InsertWithDedup(&store.Entry{Type: store.TypeText, Value: "starred", Count: 7, Favorite: true})
	require.NoError(t, err)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)
	assert.Equal(t, favID, items[0].ID)
}

func TestRunCycle_BusyWhileRunning(t *testing.T) {
	rig := newTestRig(t, "")

	// Hold the cycle lock to simulate an in-flight cycle.
	rig.engine.cycleMu.Lock()
	defer rig.engine.cycleMu.Unlock()

	_, err := rig.engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRunCycle_BlobRoundTrip(t *testing.T) {
	rig := newTestRig(t, "")

	// Device A ingests an image.
	imgDir := config.ImagesDir(rig.store.DataDir())
	require.NoError(t, os.MkdirAll(imgDir, 0o755))

	blobPath := filepath.Join(imgDir, "shot.png")
	blobBytes := []byte("png-bytes-here")
	require.NoError(t, os.WriteFile(blobPath, blobBytes, 0o644))

	id, _, err := rig.store.InsertWithDedup(&store.Entry{
		Type: store.TypeImage, Value: blobPath, Count: int64(len(blobBytes)), Width: 4, Height: 2,
	})
	require.NoError(t, err)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Errors)

	// The index entry's value is an envelope pointing at the uploaded blob.
	items := decodeIndex(t, rig.dav)
	require.Len(t, items, 1)

	env, ok := parseEnvelope(items[0].Value)
	require.True(t, ok, "value should be an envelope, got %q", items[0].Value)
	assert.Equal(t, "files/"+id+"_shot.png", env.RemotePath)
	assert.Equal(t, int64(len(blobBytes)), env.FileSize)
	assert.Equal(t, int64(4), env.Width)

	wantHash, err := store.FileMD5(blobPath)
	require.NoError(t, err)
	assert.Equal(t, wantHash, env.Checksum)

	uploaded, ok := rig.dav.get(env.RemotePath)
	require.True(t, ok)
	assert.Equal(t, blobBytes, uploaded)

	// Device B syncs from the same server and materialises the blob.
	rigB := &testRig{dav: rig.dav}
	dirB := t.TempDir()

	stB, err := store.Open(filepath.Join(dirB, "EcoPaste.db"), dirB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { stB.Close() })

	docB := config.NewDocument(filepath.Join(dirB, ".store.json"), nil)
	rigB.engine = NewEngine(stB, newFastClient(rig.dav), docB, nil, nil)

	reportB, err := rigB.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, reportB.Errors)
	assert.Equal(t, 1, reportB.Downloaded)

	e, err := stB.GetByID(id)
	require.NoError(t, err)

	// Round-trip law: the downloaded blob hashes to the envelope checksum.
	gotHash, err := store.FileMD5(e.Value)
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)
}

func TestRunCycle_ChecksumMismatchRejectsBlob(t *testing.T) {
	rig := newTestRig(t, "")

	env := Envelope{RemotePath: "files/x_pic.png", Checksum: "00000000000000000000000000000000", FileSize: 3}
	envJSON, err := json.Marshal(env)
	require.NoError(t, err)

	remote := []store.SyncItem{{ID: "x", Type: store.TypeImage, Value: string(envJSON), Time: 5}}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	rig.dav.put(indexFile, data)
	rig.dav.put("files/x_pic.png", []byte("abc"))

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	// The item was skipped and the corrupt local copy removed.
	assert.Zero(t, report.Downloaded)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "checksum mismatch")

	_, err = rig.store.GetByID("x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	localPath := filepath.Join(config.ImagesDir(rig.store.DataDir()), "x_pic.png")
	_, statErr := os.Stat(localPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCycle_MissingLocalBlobSkipped(t *testing.T) {
	rig := newTestRig(t, "")

	id, _, err := rig.store.InsertWithDedup(&store.Entry{
		Type: store.TypeImage, Value: filepath.Join(rig.store.DataDir(), "images", "gone.png"), Count: 1,
	})
	require.NoError(t, err)

	report, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Uploaded)
	require.NotEmpty(t, report.Errors)

	// The row stays pending for the next cycle.
	e, err := rig.store.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusNotSynced, e.SyncStatus)
}
