package clipboard

import (
	"context"
	"crypto/md5" //nolint:gosec // change fingerprint, not cryptography
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/Ruszero01/ecopaste-sync/internal/events"
)

// defaultPollInterval is how often the watcher samples the clipboard when
// the provider cannot push change signals.
const defaultPollInterval = 500 * time.Millisecond

// Watcher observes the clipboard through a Provider and feeds new content
// into the Ingester. It is a toggleable resource: Start is idempotent,
// Stop guarantees the sampling task has exited before returning, and the
// running state is observable.
type Watcher struct {
	provider Provider
	ingester *Ingester
	bus      *events.Bus
	logger   *slog.Logger
	interval time.Duration

	mu      stdsync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// lastDigest fingerprints the previously ingested snapshot so an
	// unchanged clipboard does not re-ingest on every poll.
	lastDigest [16]byte
}

// NewWatcher wires a Watcher. bus may be nil.
func NewWatcher(provider Provider, ingester *Ingester, bus *events.Bus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		provider: provider,
		ingester: ingester,
		bus:      bus,
		logger:   logger,
		interval: defaultPollInterval,
	}
}

// Start begins observing. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.running = true
	w.cancel = cancel
	w.done = done

	go w.run(ctx, done)

	w.logger.Info("clipboard watcher started")
}

// Stop halts observation and waits for the task to release the provider.
// Safe to call on a stopped watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}

	cancel := w.cancel
	done := w.done
	w.running = false
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("clipboard watcher stopped")
}

// IsRunning reports the observable running state.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// run is the sampling loop.
func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll samples the clipboard once and ingests changed content.
func (w *Watcher) poll(ctx context.Context) {
	snap, err := w.provider.Current(ctx)
	if err != nil {
		w.logger.Debug("clipboard read failed", slog.String("error", err.Error()))
		return
	}

	if snap.Empty() {
		return
	}

	digest := snapshotDigest(snap)
	if digest == w.lastDigest {
		return
	}

	w.lastDigest = digest

	id, isUpdate, err := w.ingester.Ingest(ctx, snap)
	if errors.Is(err, ErrRejected) {
		w.logger.Debug("clipboard event dropped", slog.String("reason", err.Error()))
		return
	}
	if err != nil {
		w.logger.Warn("clipboard ingest failed", slog.String("error", err.Error()))
		return
	}

	w.bus.Publish(events.ClipboardInserted, events.InsertedPayload{ID: id, IsUpdate: isUpdate})
}

// snapshotDigest fingerprints a snapshot for change detection.
func snapshotDigest(s Snapshot) [16]byte {
	h := md5.New() //nolint:gosec // change fingerprint, not cryptography

	h.Write(s.Image)
	for _, f := range s.Files {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	h.Write([]byte(s.RTF))
	h.Write([]byte{0})
	h.Write([]byte(s.HTML))
	h.Write([]byte{0})
	h.Write([]byte(s.Text))

	var digest [16]byte
	copy(digest[:], h.Sum(nil))

	return digest
}
