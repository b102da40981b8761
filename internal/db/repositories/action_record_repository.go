// Package repositories implements the data access layer (repository pattern)
// for CaseFlow. Each repository type encapsulates all database queries for a
// domain entity. Handlers never issue SQL directly — all database access goes
// through this layer, which makes query logic testable in isolation and
// prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ActionRecordRepository handles action record database operations. The table
// is append-only: this repository deliberately exposes no update or delete
// methods.
type ActionRecordRepository struct {
	db *sql.DB
}

// NewActionRecordRepository creates a new ActionRecordRepository
func NewActionRecordRepository(db *sql.DB) *ActionRecordRepository {
	return &ActionRecordRepository{db: db}
}

// ActionRecordFilters contains filters for querying action records
type ActionRecordFilters struct {
	ActorID    *string
	Kind       *models.ActionKind
	EntityType *string
	EntityID   *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// Create appends a new action record
func (r *ActionRecordRepository) Create(ctx context.Context, rec *models.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var requestJSON []byte
	var err error
	if rec.Request != nil {
		requestJSON, err = json.Marshal(rec.Request)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO action_records (id, actor_id, kind, entity_type, entity_id, request, ip_address, user_agent, status_code, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ActorID,
		rec.Kind,
		rec.EntityType,
		rec.EntityID,
		requestJSON,
		rec.IPAddress,
		rec.UserAgent,
		rec.StatusCode,
		rec.ElapsedMS,
		rec.CreatedAt,
	)

	return err
}

// List retrieves action records with optional filters and pagination, newest
// first
func (r *ActionRecordRepository) List(ctx context.Context, filters ActionRecordFilters, limit, offset int) ([]*models.ActionRecord, int, error) {
	countQuery := `SELECT COUNT(*) FROM action_records WHERE 1=1`
	query := `
		SELECT id, actor_id, kind, entity_type, entity_id, request, ip_address, user_agent, status_code, elapsed_ms, created_at
		FROM action_records
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.ActorID != nil {
		countQuery += fmt.Sprintf(` AND actor_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND actor_id = $%d`, paramIndex)
		args = append(args, *filters.ActorID)
		paramIndex++
	}

	if filters.Kind != nil {
		countQuery += fmt.Sprintf(` AND kind = $%d`, paramIndex)
		query += fmt.Sprintf(` AND kind = $%d`, paramIndex)
		args = append(args, *filters.Kind)
		paramIndex++
	}

	if filters.EntityType != nil {
		countQuery += fmt.Sprintf(` AND entity_type = $%d`, paramIndex)
		query += fmt.Sprintf(` AND entity_type = $%d`, paramIndex)
		args = append(args, *filters.EntityType)
		paramIndex++
	}

	if filters.EntityID != nil {
		countQuery += fmt.Sprintf(` AND entity_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND entity_id = $%d`, paramIndex)
		args = append(args, *filters.EntityID)
		paramIndex++
	}

	if filters.StartDate != nil {
		countQuery += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		query += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		countQuery += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		query += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]*models.ActionRecord, 0)
	for rows.Next() {
		rec, err := scanActionRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// Get retrieves a single action record by ID
func (r *ActionRecordRepository) Get(ctx context.Context, id string) (*models.ActionRecord, error) {
	query := `
		SELECT id, actor_id, kind, entity_type, entity_id, request, ip_address, user_agent, status_code, elapsed_ms, created_at
		FROM action_records
		WHERE id = $1
	`

	rec, err := scanActionRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActionRecord(row rowScanner) (*models.ActionRecord, error) {
	rec := &models.ActionRecord{}
	var requestJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.ActorID,
		&rec.Kind,
		&rec.EntityType,
		&rec.EntityID,
		&requestJSON,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.StatusCode,
		&rec.ElapsedMS,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if requestJSON != nil {
		if err := json.Unmarshal(requestJSON, &rec.Request); err != nil {
			return nil, err
		}
	}

	return rec, nil
}
