// change_repository.go implements the persistence layer for the entity change
// history: EntityChange rows with their FieldChange children.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ErrChangeConflict is returned when a change for the same entity at the same
// instant already exists. The conflict is surfaced to the caller rather than
// retried: the colliding writer must decide how to proceed.
var ErrChangeConflict = errors.New("a change for this entity at this timestamp already exists")

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// ChangeRepository handles entity change and field change database operations
type ChangeRepository struct {
	db *sql.DB
}

// NewChangeRepository creates a new ChangeRepository
func NewChangeRepository(db *sql.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// CreateEntityChange inserts an entity change and its field change children
// in one transaction. Returns ErrChangeConflict when a change for the same
// (entity_type, entity_id, changed_at) already exists.
func (r *ChangeRepository) CreateEntityChange(ctx context.Context, change *models.EntityChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now()
	}
	change.Active = true

	beforeJSON, err := marshalNullable(change.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalNullable(change.After)
	if err != nil {
		return err
	}
	metadataJSON, err := marshalNullable(change.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO entity_changes (id, entity_type, entity_id, kind, changed_at, actor_id, reason, before, after, metadata, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = tx.ExecContext(ctx, query,
		change.ID,
		change.EntityType,
		change.EntityID,
		change.Kind,
		change.ChangedAt,
		change.ActorID,
		change.Reason,
		beforeJSON,
		afterJSON,
		metadataJSON,
		change.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrChangeConflict
		}
		return err
	}

	for i := range change.Fields {
		field := &change.Fields[i]
		field.ChangeID = change.ID
		if err := insertFieldChange(ctx, tx, field); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AddFieldChange appends a field change to an existing entity change
func (r *ChangeRepository) AddFieldChange(ctx context.Context, field *models.FieldChange) error {
	return insertFieldChange(ctx, r.db, field)
}

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertFieldChange(ctx context.Context, db execer, field *models.FieldChange) error {
	if field.ID == "" {
		field.ID = uuid.New().String()
	}

	oldJSON, err := marshalNullable(field.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalNullable(field.NewValue)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO field_changes (id, change_id, field, old_value, new_value, kind)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = db.ExecContext(ctx, query,
		field.ID,
		field.ChangeID,
		field.Field,
		oldJSON,
		newJSON,
		field.Kind,
	)
	return err
}

// GetChange retrieves a single entity change by ID, with its field changes
func (r *ChangeRepository) GetChange(ctx context.Context, id string) (*models.EntityChange, error) {
	query := entityChangeColumns + ` FROM entity_changes WHERE id = $1`

	change, err := scanEntityChange(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadFields(ctx, change); err != nil {
		return nil, err
	}
	return change, nil
}

// ChangeFilters contains filters for history queries
type ChangeFilters struct {
	ActorID        *string
	Kind           *models.ChangeKind
	Start          *time.Time
	End            *time.Time
	IncludeDeleted bool
}

// GetHistory retrieves the change history of an entity in chronological
// order. Soft-deleted changes are excluded unless the filter includes them.
func (r *ChangeRepository) GetHistory(ctx context.Context, entityType, entityID string, filters ChangeFilters) ([]*models.EntityChange, error) {
	query := entityChangeColumns + `
		FROM entity_changes
		WHERE entity_type = $1 AND entity_id = $2
	`
	args := []interface{}{entityType, entityID}
	paramIndex := 3

	if filters.ActorID != nil {
		query += fmt.Sprintf(` AND actor_id = $%d`, paramIndex)
		args = append(args, *filters.ActorID)
		paramIndex++
	}

	if filters.Kind != nil {
		query += fmt.Sprintf(` AND kind = $%d`, paramIndex)
		args = append(args, *filters.Kind)
		paramIndex++
	}

	if filters.Start != nil {
		query += fmt.Sprintf(` AND changed_at >= $%d`, paramIndex)
		args = append(args, *filters.Start)
		paramIndex++
	}

	if filters.End != nil {
		query += fmt.Sprintf(` AND changed_at <= $%d`, paramIndex)
		args = append(args, *filters.End)
		paramIndex++
	}

	if !filters.IncludeDeleted {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY changed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]*models.EntityChange, 0)
	for rows.Next() {
		change, err := scanEntityChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, change := range changes {
		if err := r.loadFields(ctx, change); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// GetFieldHistory retrieves the history of a single field of an entity in
// chronological order.
func (r *ChangeRepository) GetFieldHistory(ctx context.Context, entityType, entityID, field string) ([]*models.FieldChange, error) {
	query := `
		SELECT f.id, f.change_id, f.field, f.old_value, f.new_value, f.kind
		FROM field_changes f
		JOIN entity_changes c ON c.id = f.change_id
		WHERE c.entity_type = $1 AND c.entity_id = $2 AND f.field = $3
		  AND c.active = TRUE AND f.deleted_at IS NULL
		ORDER BY c.changed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make([]*models.FieldChange, 0)
	for rows.Next() {
		fc, err := scanFieldChange(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, fc)
	}

	return fields, rows.Err()
}

// SoftDelete marks an entity change inactive. The row and its field changes
// are retained for restore.
func (r *ChangeRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE entity_changes
		SET active = FALSE, deleted_at = $2
		WHERE id = $1 AND active = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return err
	}
	return requireRowAffected(result, "entity change")
}

// Restore reactivates a soft-deleted entity change
func (r *ChangeRepository) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE entity_changes
		SET active = TRUE, deleted_at = NULL
		WHERE id = $1 AND active = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result, "entity change")
}

// ExpireOlderThan soft-deletes active changes whose changed_at is before the
// cutoff and returns how many rows were affected. Used by the retention job;
// action records are never expired.
func (r *ChangeRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE entity_changes
		SET active = FALSE, deleted_at = $2
		WHERE active = TRUE AND changed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ChangeRepository) loadFields(ctx context.Context, change *models.EntityChange) error {
	query := `
		SELECT id, change_id, field, old_value, new_value, kind
		FROM field_changes
		WHERE change_id = $1 AND deleted_at IS NULL
		ORDER BY field ASC
	`

	rows, err := r.db.QueryContext(ctx, query, change.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	change.Fields = change.Fields[:0]
	for rows.Next() {
		fc, err := scanFieldChange(rows)
		if err != nil {
			return err
		}
		change.Fields = append(change.Fields, *fc)
	}

	return rows.Err()
}

const entityChangeColumns = `
	SELECT id, entity_type, entity_id, kind, changed_at, actor_id, reason, before, after, metadata, active, deleted_at`

func scanEntityChange(row rowScanner) (*models.EntityChange, error) {
	change := &models.EntityChange{}
	var beforeJSON, afterJSON, metadataJSON []byte

	err := row.Scan(
		&change.ID,
		&change.EntityType,
		&change.EntityID,
		&change.Kind,
		&change.ChangedAt,
		&change.ActorID,
		&change.Reason,
		&beforeJSON,
		&afterJSON,
		&metadataJSON,
		&change.Active,
		&change.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalNullable(beforeJSON, &change.Before); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(afterJSON, &change.After); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(metadataJSON, &change.Metadata); err != nil {
		return nil, err
	}

	return change, nil
}

func scanFieldChange(row rowScanner) (*models.FieldChange, error) {
	fc := &models.FieldChange{}
	var oldJSON, newJSON []byte

	err := row.Scan(
		&fc.ID,
		&fc.ChangeID,
		&fc.Field,
		&oldJSON,
		&newJSON,
		&fc.Kind,
	)
	if err != nil {
		return nil, err
	}

	if oldJSON != nil {
		if err := json.Unmarshal(oldJSON, &fc.OldValue); err != nil {
			return nil, err
		}
	}
	if newJSON != nil {
		if err := json.Unmarshal(newJSON, &fc.NewValue); err != nil {
			return nil, err
		}
	}

	return fc, nil
}

// marshalNullable marshals a value to JSON, mapping nil to a NULL column.
func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte, dest *map[string]any) error {
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func requireRowAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s not found", entity)
	}
	return nil
}
