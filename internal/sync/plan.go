package sync

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not cryptography
	"encoding/hex"
	"log/slog"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/detect"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
)

// Conflict strategies.
const (
	ConflictLocal  = "local"
	ConflictRemote = "remote"
	ConflictMerge  = "merge"
	ConflictManual = "manual"
)

// cyclePlan is the raw classification of one cycle before conflict
// resolution.
type cyclePlan struct {
	// uploads are live local rows pending upload (not_synced/changed or
	// tracker-flagged) that pass the mode filter.
	uploads []*store.Entry
	// deletes are soft-deleted rows the server still knows about.
	deletes []*store.Entry
	// purgeLocal are soft-deleted rows that never reached the server; they
	// are hard-deleted locally with no remote traffic.
	purgeLocal []*store.Entry
	// downloads are remote entries absent from the local store.
	downloads []store.SyncItem
}

// resolvedPlan is the plan after conflict resolution.
type resolvedPlan struct {
	uploads    []*store.Entry
	downloads  []store.SyncItem
	deletes    []*store.Entry
	purgeLocal []*store.Entry
	// remoteWins are conflicting remote entries that overwrite local rows.
	remoteWins []store.SyncItem
	// manual holds conflicting ids deferred to user review: both copies
	// are kept and no status transition happens.
	manual []string
}

// buildPlan classifies every local row and remote entry. When the sync
// mode changed since the previous cycle the change-tracker short-circuit
// is ignored and every row is reconsidered, because filter membership may
// have changed.
func buildPlan(local []*store.Entry, remote []store.SyncItem, mode config.SyncMode, tracker *store.ChangeTracker, modeChanged bool, logger *slog.Logger) *cyclePlan {
	plan := &cyclePlan{}

	localIDs := make(map[string]bool, len(local))

	for _, e := range local {
		localIDs[e.ID] = true

		if e.Deleted {
			if e.SyncStatus == store.StatusSynced {
				plan.deletes = append(plan.deletes, e)
			} else {
				plan.purgeLocal = append(plan.purgeLocal, e)
			}

			continue
		}

		if !entryMatchesMode(e, mode) {
			continue
		}

		pending := e.SyncStatus != store.StatusSynced
		if !modeChanged {
			pending = pending || tracker.IsChanged(e.ID)
		}

		if pending {
			plan.uploads = append(plan.uploads, e)
		}
	}

	for _, item := range remote {
		if localIDs[item.ID] {
			continue
		}

		if !itemMatchesMode(item, mode) {
			continue
		}

		plan.downloads = append(plan.downloads, item)
	}

	logger.Debug("cycle plan",
		slog.Int("uploads", len(plan.uploads)),
		slog.Int("deletes", len(plan.deletes)),
		slog.Int("purge_local", len(plan.purgeLocal)),
		slog.Int("downloads", len(plan.downloads)),
		slog.Bool("mode_changed", modeChanged),
	)

	return plan
}

// entryMatchesMode applies the mode's favorite and content-type filters to
// a local row.
func entryMatchesMode(e *store.Entry, mode config.SyncMode) bool {
	if mode.OnlyFavorites && !e.Favorite {
		return false
	}

	return typeMatchesMode(e.Type, e.Subtype, mode)
}

// itemMatchesMode applies the same filters to a remote entry.
func itemMatchesMode(item store.SyncItem, mode config.SyncMode) bool {
	if mode.OnlyFavorites && !item.Favorite {
		return false
	}

	return typeMatchesMode(item.Type, item.Subtype, mode)
}

// typeMatchesMode maps (type, subtype) onto the mode's include switches.
// Formatted entries follow their concrete subtype switch; an unknown
// formatted subtype passes if either formatted switch is on.
func typeMatchesMode(entryType, subtype string, mode config.SyncMode) bool {
	switch entryType {
	case store.TypeText, store.TypeCode:
		return mode.IncludeText
	case store.TypeFormatted:
		switch subtype {
		case "html":
			return mode.IncludeHTML
		case "rtf":
			return mode.IncludeRTF
		case detect.SubtypeMarkdown:
			return mode.IncludeMarkdown
		default:
			return mode.IncludeHTML || mode.IncludeRTF
		}
	case store.TypeImage:
		return mode.IncludeImages
	case store.TypeFiles:
		return mode.IncludeFiles
	default:
		return true
	}
}

// resolveConflicts handles ids present in both the upload set and the
// remote index according to the mode's conflict strategy.
func (e *Engine) resolveConflicts(plan *cyclePlan, remote []store.SyncItem, mode config.SyncMode) (*resolvedPlan, error) {
	remoteByID := make(map[string]store.SyncItem, len(remote))
	for _, item := range remote {
		remoteByID[item.ID] = item
	}

	resolved := &resolvedPlan{
		downloads:  plan.downloads,
		deletes:    plan.deletes,
		purgeLocal: plan.purgeLocal,
	}

	for _, entry := range plan.uploads {
		remoteItem, inRemote := remoteByID[entry.ID]
		if !inRemote {
			resolved.uploads = append(resolved.uploads, entry)
			continue
		}

		switch resolveOne(entry, remoteItem, mode.Conflict) {
		case winnerLocal:
			resolved.uploads = append(resolved.uploads, entry)
		case winnerRemote:
			resolved.remoteWins = append(resolved.remoteWins, remoteItem)
		case winnerManual:
			resolved.manual = append(resolved.manual, entry.ID)
		}
	}

	return resolved, nil
}

// conflict winners.
type winner int

const (
	winnerLocal winner = iota
	winnerRemote
	winnerManual
)

// resolveOne decides a single conflict. Under merge, the higher timestamp
// wins; a tie with differing content hashes goes to the remote copy, which
// is treated as canonical.
func resolveOne(local *store.Entry, remote store.SyncItem, strategy string) winner {
	switch strategy {
	case ConflictLocal:
		return winnerLocal
	case ConflictRemote:
		return winnerRemote
	case ConflictManual:
		return winnerManual
	default: // merge
		switch {
		case local.Time > remote.Time:
			return winnerLocal
		case remote.Time > local.Time:
			return winnerRemote
		default:
			if contentHash(local.Value) != contentHash(remote.Value) {
				return winnerRemote
			}

			// Identical content either way; taking the remote copy settles
			// the row into synced without re-uploading.
			return winnerRemote
		}
	}
}

// contentHash fingerprints a value for tie-breaking.
func contentHash(value string) string {
	sum := md5.Sum([]byte(value)) //nolint:gosec // content fingerprint, not cryptography
	return hex.EncodeToString(sum[:])
}

// mergeIndex builds the next remote index: the previous index minus
// deletions and superseded entries, plus everything uploaded this cycle
// (with blob values already rewritten to envelopes).
func mergeIndex(remote []store.SyncItem, resolved *resolvedPlan, uploaded []store.SyncItem) []store.SyncItem {
	drop := make(map[string]bool, len(resolved.deletes)+len(uploaded))

	for _, entry := range resolved.deletes {
		drop[entry.ID] = true
	}

	for _, item := range uploaded {
		drop[item.ID] = true
	}

	next := make([]store.SyncItem, 0, len(remote)+len(uploaded))

	for _, item := range remote {
		if !drop[item.ID] {
			next = append(next, item)
		}
	}

	next = append(next, uploaded...)

	return next
}
