// Package entity declares the static sync descriptors: one per synchronized
// entity type, defining how that type round-trips between the local store and
// the remote API.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/provio/fieldsync/models"
)

// Descriptor is the declarative definition of one synchronized entity type.
// Descriptors are static; all per-run state lives in the store and the
// orchestrator.
type Descriptor struct {
	// Name identifies the descriptor in cursors, logs and status maps.
	Name string
	// TableName is the local table.
	TableName string
	// PullPath and PushPath are the remote routes for incremental pull and
	// batched mutation.
	PullPath string
	PushPath string
	// CursorField is the timestamp column used for incremental pull.
	CursorField string
	// PrimaryKeys is the ordered set of columns forming local identity.
	PrimaryKeys []string
	// ScopeField partitions the table by technician; empty means shared.
	ScopeField string
	// InstanceField groups rows under one logical parent (e.g. a checklist
	// instance) for narrow pushes; optional.
	InstanceField string
	// BatchSize caps records per round-trip; 0 falls back to the configured
	// default.
	BatchSize int
	// Conflict selects the pull-time resolution policy.
	Conflict models.ConflictPolicy
	// Counted marks descriptors whose pending rows feed the UI's
	// pendingAnswers counter.
	Counted bool

	// FromServer converts a wire record to a local row. Pure and total on
	// well-formed input; optional fields may be absent.
	FromServer func(raw json.RawMessage) (models.Row, error)
	// ToServer converts a local row to an outgoing mutation embedding the
	// row's localId.
	ToServer func(row models.Row) (models.PushItem, error)
}

// Validate checks the descriptor is complete enough to register.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("descriptor name is required"))
	}
	if d.TableName == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	if d.PullPath == "" || d.PushPath == "" {
		errs = append(errs, errors.New("pull and push paths are required"))
	}
	if d.CursorField == "" {
		errs = append(errs, errors.New("cursor field is required"))
	}
	if len(d.PrimaryKeys) == 0 {
		errs = append(errs, errors.New("at least one primary key is required"))
	}
	switch d.Conflict {
	case models.ConflictServerWins, models.ConflictLastWriteWins, models.ConflictClientWins:
	default:
		errs = append(errs, fmt.Errorf("unknown conflict policy %q", d.Conflict))
	}
	if d.FromServer == nil || d.ToServer == nil {
		errs = append(errs, errors.New("both transforms are required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid descriptor %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

// optString maps an optional wire field to a nullable column value.
func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// colString reads a nullable column back into an optional wire field.
func colString(row models.Row, col string) *string {
	if row[col] == nil {
		return nil
	}
	s := row.String(col)
	return &s
}
