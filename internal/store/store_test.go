package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/detect"
)

// newTestStore opens a store in a temp dir with a controllable clock.
func newTestStore(t *testing.T) (*Store, *int64) {
	t.Helper()

	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "EcoPaste.db"), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := int64(1_000_000)
	s.now = func() int64 { clock++; return clock }

	return s, &clock
}

func textEntry(value string) *Entry {
	return &Entry{Type: TypeText, Value: value, Count: int64(len(value))}
}

func TestInsert_NewRow(t *testing.T) {
	s, _ := newTestStore(t)

	id, isUpdate, err := s.InsertWithDedup(textEntry("hello"))
	require.NoError(t, err)
	assert.False(t, isUpdate)
	assert.NotEmpty(t, id)

	e, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", e.Value)
	assert.Equal(t, StatusNotSynced, e.SyncStatus)
	assert.Equal(t, GroupText, e.Group)
	assert.False(t, e.Deleted)
	assert.NotZero(t, e.Position)
}

func TestInsert_TextDedup(t *testing.T) {
	s, _ := newTestStore(t)

	id1, _, err := s.InsertWithDedup(textEntry("hello"))
	require.NoError(t, err)

	first, err := s.GetByID(id1)
	require.NoError(t, err)

	id2, isUpdate, err := s.InsertWithDedup(textEntry("hello"))
	require.NoError(t, err)

	assert.True(t, isUpdate)
	assert.Equal(t, id1, id2)

	e, err := s.GetByID(id1)
	require.NoError(t, err)

	// One row, accumulated count, bumped time, flagged changed.
	assert.Equal(t, int64(10), e.Count)
	assert.Greater(t, e.Time, first.Time)
	assert.Equal(t, StatusChanged, e.SyncStatus)
	assert.True(t, s.Tracker.IsChanged(id1))

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestInsert_ColorDedupAcrossFormats(t *testing.T) {
	s, _ := newTestStore(t)

	insertColor := func(raw string) (string, bool) {
		normalized, ok := detect.NormalizeColor(raw)
		require.True(t, ok)

		id, isUpdate, err := s.InsertWithDedup(&Entry{
			Type:    TypeText,
			Subtype: detect.SubtypeColor,
			Value:   raw,
			Search:  normalized,
			Count:   int64(len(raw)),
		})
		require.NoError(t, err)

		return id, isUpdate
	}

	id1, up1 := insertColor("#ff0000")
	assert.False(t, up1)

	id2, up2 := insertColor("rgb(255, 0, 0)")
	assert.True(t, up2)
	assert.Equal(t, id1, id2)

	// Within Euclidean distance 10 still matches.
	id3, up3 := insertColor("rgb(250, 0, 0)")
	assert.True(t, up3)
	assert.Equal(t, id1, id3)

	// Far away colours are distinct rows.
	_, up4 := insertColor("#0000ff")
	assert.False(t, up4)

	e, err := s.GetByID(id1)
	require.NoError(t, err)
	assert.Equal(t, detect.SubtypeColor, e.Subtype)
	assert.Equal(t, "255, 0, 0", e.Search)
}

func TestInsert_FilesDedupSortedPaths(t *testing.T) {
	s, _ := newTestStore(t)

	id1, _, err := s.InsertWithDedup(&Entry{Type: TypeFiles, Value: `["/a/x","/b/y"]`})
	require.NoError(t, err)

	id2, isUpdate, err := s.InsertWithDedup(&Entry{Type: TypeFiles, Value: `["/b/y","/a/x"]`})
	require.NoError(t, err)

	assert.True(t, isUpdate)
	assert.Equal(t, id1, id2)

	_, isUpdate, err = s.InsertWithDedup(&Entry{Type: TypeFiles, Value: `["/a/x"]`})
	require.NoError(t, err)
	assert.False(t, isUpdate)
}

func TestInsert_ImageDedupByContentHash(t *testing.T) {
	s, _ := newTestStore(t)
	dir := config.ImagesDir(s.DataDir())
	require.NoError(t, os.MkdirAll(dir, 0o755))

	blob1 := filepath.Join(dir, "a.png")
	blob2 := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(blob1, []byte("samebytes"), 0o644))
	require.NoError(t, os.WriteFile(blob2, []byte("samebytes"), 0o644))

	id1, _, err := s.InsertWithDedup(&Entry{Type: TypeImage, Value: blob1, Count: 9})
	require.NoError(t, err)

	id2, isUpdate, err := s.InsertWithDedup(&Entry{Type: TypeImage, Value: blob2, Count: 9})
	require.NoError(t, err)

	assert.True(t, isUpdate)
	assert.Equal(t, id1, id2)

	// The redundant second blob was removed from the cache.
	_, statErr := os.Stat(blob2)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdateField_SemanticTransitions(t *testing.T) {
	s, _ := newTestStore(t)

	id, _, err := s.InsertWithDedup(textEntry("note me"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateSyncStatus(id, StatusSynced))
	s.Tracker.Clear(id)

	before, err := s.GetByID(id)
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(id, "note", "remember"))

	e, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "remember", e.Note)
	assert.Equal(t, StatusChanged, e.SyncStatus, "synced rows move to changed on a semantic write")
	assert.Greater(t, e.Time, before.Time)
	assert.True(t, s.Tracker.IsChanged(id))
}

func TestUpdateField_NonSemanticKeepsStatus(t *testing.T) {
	s, _ := newTestStore(t)

	id, _, err := s.InsertWithDedup(textEntry("w"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateSyncStatus(id, StatusSynced))
	s.Tracker.Clear(id)

	require.NoError(t, s.UpdateField(id, "position", 42))

	e, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, e.SyncStatus)
	assert.False(t, s.Tracker.IsChanged(id))
}

func TestUpdateField_RejectsUnknownField(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateField("x", "id; DROP TABLE history", "boom")
	require.Error(t, err)
}

func TestSoftDelete_MarksAndSurvives(t *testing.T) {
	s, _ := newTestStore(t)

	id, _, err := s.InsertWithDedup(textEntry("bye"))
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(id))

	e, err := s.GetByID(id)
	require.NoError(t, err)
	assert.True(t, e.Deleted)
	assert.True(t, s.Tracker.IsChanged(id))

	// Excluded from live queries, still present in raw ones.
	live, err := s.Query(QueryOptions{ExcludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := s.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteAuto_StrategyPerRow(t *testing.T) {
	s, _ := newTestStore(t)

	syncedID, _, err := s.InsertWithDedup(textEntry("synced row"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateSyncStatus(syncedID, StatusSynced))

	localID, _, err := s.InsertWithDedup(textEntry("local only"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAuto([]string{syncedID, localID}))

	// Synced row: soft-deleted, awaiting remote propagation.
	e, err := s.GetByID(syncedID)
	require.NoError(t, err)
	assert.True(t, e.Deleted)

	// Never-synced row: gone outright.
	_, err = s.GetByID(localID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFromCloud_InsertAndOverwrite(t *testing.T) {
	s, _ := newTestStore(t)

	item := SyncItem{ID: "cloud-1", Type: TypeText, Value: "from cloud", Favorite: true, Time: 12345}

	require.NoError(t, s.UpsertFromCloud(item))

	e, err := s.GetByID("cloud-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, e.SyncStatus)
	assert.Equal(t, item, e.ToSyncItem())

	// Overwrite revives soft-deleted rows and clears the change flag.
	require.NoError(t, s.SoftDelete("cloud-1"))

	updated := item
	updated.Value = "newer"
	updated.Time = 20000
	require.NoError(t, s.UpsertFromCloud(updated))

	e, err = s.GetByID("cloud-1")
	require.NoError(t, err)
	assert.False(t, e.Deleted)
	assert.Equal(t, "newer", e.Value)
	assert.Equal(t, StatusSynced, e.SyncStatus)
	assert.False(t, s.Tracker.IsChanged("cloud-1"))
}

func TestQuery_FavoritesAndTypes(t *testing.T) {
	s, _ := newTestStore(t)

	_, _, err := s.InsertWithDedup(textEntry("plain"))
	require.NoError(t, err)

	favID, _, err := s.InsertWithDedup(textEntry("starred"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateField(favID, "favorite", true))

	_, _, err = s.InsertWithDedup(&Entry{Type: TypeFiles, Value: `["/f"]`})
	require.NoError(t, err)

	favs, err := s.Query(QueryOptions{OnlyFavorites: true, ExcludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, favID, favs[0].ID)

	files, err := s.Query(QueryOptions{ExcludeDeleted: true, Types: []string{TypeFiles}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, TypeFiles, files[0].Type)
}

func TestStatistics(t *testing.T) {
	s, _ := newTestStore(t)

	a, _, err := s.InsertWithDedup(textEntry("a"))
	require.NoError(t, err)
	b, _, err := s.InsertWithDedup(textEntry("b"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateSyncStatus(a, StatusSynced))
	require.NoError(t, s.UpdateField(b, "favorite", true))

	c, _, err := s.InsertWithDedup(textEntry("c"))
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(c))

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, Statistics{Total: 3, Active: 2, Synced: 1, Favorites: 1}, stats)
}

// --- change tracker ---

func TestChangeTracker_Lifecycle(t *testing.T) {
	tr := NewChangeTracker()

	tr.Mark("a")
	tr.Mark("b")
	tr.Mark("a")

	assert.True(t, tr.IsChanged("a"))
	assert.Equal(t, 2, tr.Count())
	assert.ElementsMatch(t, []string{"a", "b"}, tr.Snapshot())

	tr.Clear("a")
	assert.False(t, tr.IsChanged("a"))

	tr.ClearAll()
	assert.Zero(t, tr.Count())
}

// --- retention & GC ---

func TestCleanup_ZeroRuleDeletesNothing(t *testing.T) {
	s, _ := newTestStore(t)

	for _, v := range []string{"one", "two", "three"} {
		_, _, err := s.InsertWithDedup(textEntry(v))
		require.NoError(t, err)
	}

	res, err := s.Cleanup(config.Retention{RetainDays: 0, RetainCount: 0})
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredRows)
	assert.Zero(t, res.ExcessRows)

	live, err := s.Query(QueryOptions{ExcludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

func TestCleanup_AgeRetentionSparesFavorites(t *testing.T) {
	s, clock := newTestStore(t)

	oldID, _, err := s.InsertWithDedup(textEntry("ancient"))
	require.NoError(t, err)

	favID, _, err := s.InsertWithDedup(textEntry("ancient favorite"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateField(favID, "favorite", true))

	// Advance the clock two days.
	*clock += 2 * 24 * 60 * 60 * 1000

	freshID, _, err := s.InsertWithDedup(textEntry("fresh"))
	require.NoError(t, err)

	res, err := s.Cleanup(config.Retention{RetainDays: 1, Unit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredRows)

	// The old non-favorite was never synced, so it is hard-deleted.
	_, err = s.GetByID(oldID)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{favID, freshID} {
		e, err := s.GetByID(id)
		require.NoError(t, err)
		assert.False(t, e.Deleted)
	}
}

func TestCleanup_CountRetentionDropsOldest(t *testing.T) {
	s, _ := newTestStore(t)

	first, _, err := s.InsertWithDedup(textEntry("first"))
	require.NoError(t, err)

	for _, v := range []string{"second", "third"} {
		_, _, err := s.InsertWithDedup(textEntry(v))
		require.NoError(t, err)
	}

	res, err := s.Cleanup(config.Retention{RetainCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExcessRows)

	_, err = s.GetByID(first)
	assert.ErrorIs(t, err, ErrNotFound)

	live, err := s.Query(QueryOptions{ExcludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestCleanup_EmptyStoreSweepsEveryBlob(t *testing.T) {
	s, _ := newTestStore(t)

	imgDir := config.ImagesDir(s.DataDir())
	sub := filepath.Join(imgDir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "stray.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.png"), []byte("y"), 0o644))

	res, err := s.Cleanup(config.Retention{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OrphanedBlobs)
}

func TestCleanup_KeepsReferencedBlobs(t *testing.T) {
	s, _ := newTestStore(t)

	imgDir := config.ImagesDir(s.DataDir())
	require.NoError(t, os.MkdirAll(imgDir, 0o755))

	kept := filepath.Join(imgDir, "kept.png")
	stray := filepath.Join(imgDir, "stray.png")
	require.NoError(t, os.WriteFile(kept, []byte("kept"), 0o644))
	require.NoError(t, os.WriteFile(stray, []byte("stray"), 0o644))

	_, _, err := s.InsertWithDedup(&Entry{Type: TypeImage, Value: kept, Count: 4})
	require.NoError(t, err)

	res, err := s.Cleanup(config.Retention{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphanedBlobs)

	_, err = os.Stat(kept)
	assert.NoError(t, err)
}
