// Package changes implements change-history recording for domain entities.
// Every recorded transition produces one EntityChange row carrying whole-entity
// before/after snapshots, plus one FieldChange child per affected field. The
// package derives the field-level diff from the snapshots so callers only
// supply what the entity looked like before and after.
package changes

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/telemetry"
)

// Repository is the persistence surface the service records through.
type Repository interface {
	CreateEntityChange(ctx context.Context, change *models.EntityChange) error
	AddFieldChange(ctx context.Context, field *models.FieldChange) error
	GetChange(ctx context.Context, id string) (*models.EntityChange, error)
	GetHistory(ctx context.Context, entityType, entityID string, filters repositories.ChangeFilters) ([]*models.EntityChange, error)
	GetFieldHistory(ctx context.Context, entityType, entityID, field string) ([]*models.FieldChange, error)
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

// Service records entity transitions and serves history queries.
type Service struct {
	repo Repository
}

// NewService creates a change recording service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Option customises a recorded change.
type Option func(*recordOptions)

type recordOptions struct {
	reason           *string
	metadata         map[string]any
	at               time.Time
	includeUnchanged bool
}

// WithReason attaches a free-form reason to the change
func WithReason(reason string) Option {
	return func(o *recordOptions) { o.reason = &reason }
}

// WithMetadata attaches arbitrary metadata to the change
func WithMetadata(metadata map[string]any) Option {
	return func(o *recordOptions) { o.metadata = metadata }
}

// At pins the change timestamp instead of using the current time. Two changes
// for the same entity pinned to the same instant conflict.
func At(t time.Time) Option {
	return func(o *recordOptions) { o.at = t }
}

// WithUnchanged records field rows for unchanged fields too, not just the
// fields whose values differ. Useful for full-snapshot audits.
func WithUnchanged() Option {
	return func(o *recordOptions) { o.includeUnchanged = true }
}

// RecordCreate records the creation of an entity. Every snapshot field gets a
// field change with no old value.
func (s *Service) RecordCreate(ctx context.Context, actorID, entityType, entityID string, after map[string]any, opts ...Option) (*models.EntityChange, error) {
	return s.record(ctx, actorID, entityType, entityID, models.ChangeCreate, nil, after, opts)
}

// RecordUpdate records a transition between two snapshots of an entity. Field
// changes are derived from the snapshot diff.
func (s *Service) RecordUpdate(ctx context.Context, actorID, entityType, entityID string, before, after map[string]any, opts ...Option) (*models.EntityChange, error) {
	return s.record(ctx, actorID, entityType, entityID, models.ChangeUpdate, before, after, opts)
}

// RecordDelete records the deletion of an entity. Every snapshot field gets a
// field change with no new value.
func (s *Service) RecordDelete(ctx context.Context, actorID, entityType, entityID string, before map[string]any, opts ...Option) (*models.EntityChange, error) {
	return s.record(ctx, actorID, entityType, entityID, models.ChangeDelete, before, nil, opts)
}

func (s *Service) record(ctx context.Context, actorID, entityType, entityID string, kind models.ChangeKind, before, after map[string]any, opts []Option) (*models.EntityChange, error) {
	options := recordOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	change := &models.EntityChange{
		EntityType: entityType,
		EntityID:   entityID,
		Kind:       kind,
		ChangedAt:  options.at,
		Reason:     options.reason,
		Before:     before,
		After:      after,
		Metadata:   options.metadata,
		Fields:     diffFields(before, after, options.includeUnchanged),
	}
	if actorID != "" {
		change.ActorID = &actorID
	}

	if err := s.repo.CreateEntityChange(ctx, change); err != nil {
		return nil, err
	}

	telemetry.ChangeRecordsTotal.WithLabelValues("entity").Inc()
	telemetry.ChangeRecordsTotal.WithLabelValues("field").Add(float64(len(change.Fields)))

	return change, nil
}

// diffFields derives field changes from two snapshots. The result is sorted by
// field name so recorded history is deterministic.
func diffFields(before, after map[string]any, includeUnchanged bool) []models.FieldChange {
	names := make(map[string]struct{}, len(before)+len(after))
	for name := range before {
		names[name] = struct{}{}
	}
	for name := range after {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	fields := make([]models.FieldChange, 0, len(sorted))
	for _, name := range sorted {
		oldValue, hadOld := before[name]
		newValue, hasNew := after[name]

		fc := models.FieldChange{
			Field:    name,
			OldValue: oldValue,
			NewValue: newValue,
		}
		switch {
		case !hadOld:
			fc.Kind = models.ChangeCreate
		case !hasNew:
			fc.Kind = models.ChangeDelete
		default:
			fc.Kind = models.ChangeUpdate
		}

		if !includeUnchanged && fc.Kind == models.ChangeUpdate && !fc.HasChanged() {
			continue
		}
		fields = append(fields, fc)
	}

	return fields
}

// RecordField appends a single field change to an existing change. Domain
// services use this for fine-grained history outside a full snapshot diff; the
// parent change must already exist.
func (s *Service) RecordField(ctx context.Context, changeID, field string, oldValue, newValue any, kind models.ChangeKind) (*models.FieldChange, error) {
	fc := &models.FieldChange{
		ChangeID: changeID,
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Kind:     kind,
	}
	if err := s.repo.AddFieldChange(ctx, fc); err != nil {
		return nil, err
	}
	telemetry.ChangeRecordsTotal.WithLabelValues("field").Inc()
	return fc, nil
}

// Get retrieves one change with its field children
func (s *Service) Get(ctx context.Context, id string) (*models.EntityChange, error) {
	return s.repo.GetChange(ctx, id)
}

// History retrieves an entity's change history in chronological order
func (s *Service) History(ctx context.Context, entityType, entityID string, filters repositories.ChangeFilters) ([]*models.EntityChange, error) {
	return s.repo.GetHistory(ctx, entityType, entityID, filters)
}

// FieldHistory retrieves the history of one field of an entity in
// chronological order
func (s *Service) FieldHistory(ctx context.Context, entityType, entityID, field string) ([]*models.FieldChange, error) {
	return s.repo.GetFieldHistory(ctx, entityType, entityID, field)
}

// SoftDelete marks a change inactive; it disappears from history queries but
// can be restored
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

// Restore reactivates a soft-deleted change
func (s *Service) Restore(ctx context.Context, id string) error {
	return s.repo.Restore(ctx, id)
}

// IsConflict reports whether the error is a change-collision conflict that
// should map to HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, repositories.ErrChangeConflict)
}
