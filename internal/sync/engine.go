// Package sync reconciles the local clipboard history with the remote
// WebDAV index and blob files. One cycle runs gather → fetch remote →
// classify → resolve conflicts → blob I/O → index write → local update;
// local state mutates only after all remote I/O for the cycle succeeded.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/events"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
	"github.com/Ruszero01/ecopaste-sync/internal/webdav"
)

// Remote file names under the configured sync root.
const (
	indexFile    = "sync-data.json"
	bookmarkFile = "bookmark-sync.json"
	configFile   = "store-config.json"
	blobDir      = "files"
)

// ErrBusy is returned when a cycle is requested while another is running.
var ErrBusy = errors.New("sync: cycle already running")

// Remote is the WebDAV surface the engine needs. Satisfied by
// *webdav.Client; defined here per "accept interfaces, return structs".
type Remote interface {
	EnsureDir(ctx context.Context, rel string) error
	Exists(ctx context.Context, rel string) (bool, error)
	Upload(ctx context.Context, rel string, data []byte, contentType string) error
	Download(ctx context.Context, rel string) ([]byte, error)
	Delete(ctx context.Context, rel string) error
	TestConnection(ctx context.Context) webdav.ConnectionResult
}

// Report summarises one cycle.
type Report struct {
	Uploaded   int
	Downloaded int
	Deleted    int
	Conflicts  []string
	Errors     []string
	Duration   time.Duration
}

// Engine owns one device's reconciliation. It holds handles to the store
// and the remote; events flow out through the bus, never through a UI
// handle. At most one cycle runs per process (coarse mutex).
type Engine struct {
	store  *store.Store
	remote Remote
	doc    *config.Document
	bus    *events.Bus
	logger *slog.Logger

	cycleMu stdsync.Mutex

	// lastMode detects sync-mode changes between cycles, which force a full
	// reclassification because filter membership may have changed.
	modeMu   stdsync.Mutex
	lastMode *config.SyncMode

	// now is the cycle clock; tests override it.
	now func() int64
}

// NewEngine wires an Engine. bus may be nil (events are dropped).
func NewEngine(st *store.Store, remote Remote, doc *config.Document, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:  st,
		remote: remote,
		doc:    doc,
		bus:    bus,
		logger: logger,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// RunCycle executes one reconciliation cycle. A concurrent call returns
// ErrBusy immediately rather than queueing.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	if !e.cycleMu.TryLock() {
		return nil, ErrBusy
	}
	defer e.cycleMu.Unlock()

	start := time.Now()

	report, err := e.runLocked(ctx)
	if err != nil {
		e.bus.Publish(events.SyncError, events.ErrorPayload{Message: err.Error()})
		return nil, err
	}

	report.Duration = time.Since(start)

	e.bus.Publish(events.SyncCompleted, events.CompletedPayload{
		Uploaded:   report.Uploaded,
		Downloaded: report.Downloaded,
		Deleted:    report.Deleted,
		Errors:     len(report.Errors),
	})

	e.logger.Info("sync cycle finished",
		slog.Int("uploaded", report.Uploaded),
		slog.Int("downloaded", report.Downloaded),
		slog.Int("deleted", report.Deleted),
		slog.Int("conflicts", len(report.Conflicts)),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// runLocked is the cycle body; the caller holds cycleMu.
func (e *Engine) runLocked(ctx context.Context) (*Report, error) {
	mode := e.doc.Mode()
	modeChanged := e.noteMode(mode)

	report := &Report{}

	// Step 1: gather local rows, including soft-deleted ones.
	e.progress(5, "gathering local history", "gather")

	local, err := e.store.Query(store.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("sync: gathering local rows: %w", err)
	}

	// Step 2: fetch the remote index; absence means empty.
	e.progress(15, "fetching remote index", "fetch")

	remoteItems, err := e.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Steps 3–4: classify and resolve conflicts.
	e.progress(30, "classifying changes", "classify")

	plan := buildPlan(local, remoteItems, mode, e.store.Tracker, modeChanged, e.logger)

	resolved, err := e.resolveConflicts(plan, remoteItems, mode)
	if err != nil {
		return nil, err
	}

	report.Conflicts = resolved.manual

	// Nothing to exchange: purge local tombstones that never reached the
	// server and finish without a single remote write.
	if len(resolved.uploads) == 0 && len(resolved.deletes) == 0 &&
		len(resolved.downloads) == 0 && len(resolved.remoteWins) == 0 {
		purgeIDs := make([]string, 0, len(resolved.purgeLocal))
		for _, entry := range resolved.purgeLocal {
			purgeIDs = append(purgeIDs, entry.ID)
		}

		if err := e.store.BatchHardDelete(purgeIDs); err != nil {
			return nil, err
		}

		if err := e.doc.SetLastSyncTime(e.now()); err != nil {
			e.logger.Warn("persisting last sync time", slog.String("error", err.Error()))
		}

		e.progress(100, "nothing to sync", "done")

		return report, nil
	}

	// Step 5: blob transfers, bounded concurrency. Per-item failures keep
	// the item pending for the next cycle without failing this one.
	e.progress(50, "transferring blobs", "blobs")

	uploadItems, blobErrs := e.uploadBlobs(ctx, resolved.uploads)
	report.Errors = append(report.Errors, blobErrs...)

	downloadItems, blobErrs := e.downloadBlobs(ctx, resolved.downloads)
	report.Errors = append(report.Errors, blobErrs...)

	// Step 6: write the merged index. Failure aborts before any local
	// mutation so the next cycle starts from consistent state.
	e.progress(75, "writing remote index", "index")

	newIndex := mergeIndex(remoteItems, resolved, uploadItems)

	if err := e.uploadIndex(ctx, newIndex); err != nil {
		return nil, err
	}

	// Step 7: drop remote blobs referenced only by deleted entries. Orphans
	// from failures here are tolerable and cleaned up later.
	e.progress(85, "deleting remote blobs", "blob-gc")
	e.deleteRemoteBlobs(ctx, resolved.deletes, remoteItems, report)

	// Step 8: all remote I/O succeeded; mutate local state in one place.
	e.progress(95, "updating local state", "commit")

	if err := e.commitLocal(resolved, uploadItems, downloadItems, report); err != nil {
		return nil, err
	}

	// Step 9: persist the cycle timestamp.
	if err := e.doc.SetLastSyncTime(e.now()); err != nil {
		e.logger.Warn("persisting last sync time", slog.String("error", err.Error()))
	}

	e.progress(100, "done", "done")

	return report, nil
}

// noteMode records the cycle's mode and reports whether it differs from the
// previous cycle's.
func (e *Engine) noteMode(mode config.SyncMode) bool {
	e.modeMu.Lock()
	defer e.modeMu.Unlock()

	changed := e.lastMode != nil && *e.lastMode != mode
	m := mode
	e.lastMode = &m

	return changed
}

// fetchIndex downloads and parses sync-data.json; a missing file is an
// empty history.
func (e *Engine) fetchIndex(ctx context.Context) ([]store.SyncItem, error) {
	data, err := e.remote.Download(ctx, indexFile)
	if errors.Is(err, webdav.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync: fetching remote index: %w", err)
	}

	var items []store.SyncItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("sync: parsing remote index: %w", err)
	}

	return items, nil
}

// uploadIndex serialises and uploads the merged index.
func (e *Engine) uploadIndex(ctx context.Context, items []store.SyncItem) error {
	if items == nil {
		items = []store.SyncItem{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("sync: encoding index: %w", err)
	}

	if err := e.remote.Upload(ctx, indexFile, data, "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("sync: uploading index: %w", err)
	}

	return nil
}

// deleteRemoteBlobs removes blobs belonging to deleted entries. Failures
// are logged into the report but never fail the cycle.
func (e *Engine) deleteRemoteBlobs(ctx context.Context, deletes []*store.Entry, remoteItems []store.SyncItem, report *Report) {
	byID := make(map[string]store.SyncItem, len(remoteItems))
	for _, item := range remoteItems {
		byID[item.ID] = item
	}

	for _, entry := range deletes {
		item, ok := byID[entry.ID]
		if !ok {
			continue
		}

		env, ok := parseEnvelope(item.Value)
		if !ok {
			continue
		}

		if err := e.remote.Delete(ctx, env.RemotePath); err != nil {
			e.logger.Warn("deleting remote blob",
				slog.String("id", entry.ID),
				slog.String("path", env.RemotePath),
				slog.String("error", err.Error()),
			)
			report.Errors = append(report.Errors, fmt.Sprintf("delete blob %s: %v", env.RemotePath, err))
		}
	}
}

// commitLocal applies step 8: statuses for uploads, upserts for downloads,
// hard deletes for propagated removals and never-synced tombstones.
func (e *Engine) commitLocal(resolved *resolvedPlan, uploads []store.SyncItem, downloads []store.SyncItem, report *Report) error {
	uploadedIDs := make([]string, 0, len(uploads))
	for _, item := range uploads {
		uploadedIDs = append(uploadedIDs, item.ID)
	}

	if err := e.store.BatchUpdateSyncStatus(uploadedIDs, store.StatusSynced); err != nil {
		return err
	}

	for _, id := range uploadedIDs {
		e.store.Tracker.Clear(id)
	}

	report.Uploaded = len(uploadedIDs)

	for _, item := range downloads {
		if err := e.store.UpsertFromCloud(item); err != nil {
			return err
		}
	}

	report.Downloaded = len(downloads)

	// Conflicts resolved in the remote copy's favour overwrite local rows.
	for _, item := range resolved.remoteWins {
		if err := e.store.UpsertFromCloud(item); err != nil {
			return err
		}
	}

	deleteIDs := make([]string, 0, len(resolved.deletes)+len(resolved.purgeLocal))
	for _, entry := range resolved.deletes {
		deleteIDs = append(deleteIDs, entry.ID)
	}
	for _, entry := range resolved.purgeLocal {
		deleteIDs = append(deleteIDs, entry.ID)
	}

	if err := e.store.BatchHardDelete(deleteIDs); err != nil {
		return err
	}

	report.Deleted = len(resolved.deletes)

	return nil
}

// progress publishes a sync.progress event.
func (e *Engine) progress(percent float64, message, step string) {
	e.bus.Publish(events.SyncProgress, events.ProgressPayload{
		Percent: percent,
		Message: message,
		Step:    step,
	})
}

// TestConnection probes the remote and publishes connection.status.
func (e *Engine) TestConnection(ctx context.Context) webdav.ConnectionResult {
	result := e.remote.TestConnection(ctx)

	e.bus.Publish(events.ConnectionStatus, events.ConnectionPayload{
		Connected: result.Connected,
		Message:   result.Message,
	})

	return result
}
