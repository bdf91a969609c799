package service

import (
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/models"
)

// resolution classifies the outcome of comparing an incoming server row with
// its local counterpart during a pull.
type resolution int

const (
	// resolutionApply overwrites the local row with the server row.
	resolutionApply resolution = iota
	// resolutionKeepLocal leaves the local row untouched and queued for push.
	resolutionKeepLocal
)

// resolveConflict decides whether an incoming server row replaces a local row
// that still carries unsynced edits. local is nil when no counterpart exists.
//
// Whole records are compared; there is no field-level merging. A row claimed
// by an in-flight push (SYNCING) is always kept: the push outcome settles it.
func resolveConflict(d *entity.Descriptor, incoming, local models.Row) resolution {
	if local == nil {
		return resolutionApply
	}

	switch local.Status() {
	case models.SyncStatusSynced:
		// No unsynced local edit; the server row is strictly newer knowledge.
		return resolutionApply
	case models.SyncStatusSyncing:
		return resolutionKeepLocal
	}

	switch d.Conflict {
	case models.ConflictServerWins:
		return resolutionApply
	case models.ConflictClientWins:
		return resolutionKeepLocal
	case models.ConflictLastWriteWins:
		// Ties go to the server; it is the authoritative record keeper.
		if local.Time(d.CursorField).After(incoming.Time(d.CursorField)) {
			return resolutionKeepLocal
		}
		return resolutionApply
	default:
		return resolutionKeepLocal
	}
}
