// case_repository.go implements CaseRepository for case files, the
// tenant-scoped entities whose writes feed the change history.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/db/models"
)

// CaseRepository handles case file database operations
type CaseRepository struct {
	db *sql.DB
}

// NewCaseRepository creates a new CaseRepository
func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// CaseFilters contains filters for querying case files
type CaseFilters struct {
	ClientID   *string
	Status     *string
	AssignedTo *string
	CreatedBy  *string
}

// CreateCase creates a new case file
func (r *CaseRepository) CreateCase(ctx context.Context, cf *models.CaseFile) error {
	if cf.ID == "" {
		cf.ID = uuid.New().String()
	}
	if cf.Status == "" {
		cf.Status = "open"
	}
	cf.CreatedAt = time.Now()
	cf.UpdatedAt = time.Now()

	query := `
		INSERT INTO cases (id, client_id, title, status, description, assigned_to, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		cf.ID,
		cf.ClientID,
		cf.Title,
		cf.Status,
		cf.Description,
		cf.AssignedTo,
		cf.CreatedBy,
		cf.CreatedAt,
		cf.UpdatedAt,
	)

	return err
}

// GetCaseByID retrieves a case file by ID
func (r *CaseRepository) GetCaseByID(ctx context.Context, id string) (*models.CaseFile, error) {
	query := caseColumns + ` FROM cases WHERE id = $1`

	cf := &models.CaseFile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cf.ID,
		&cf.ClientID,
		&cf.Title,
		&cf.Status,
		&cf.Description,
		&cf.AssignedTo,
		&cf.CreatedBy,
		&cf.CreatedAt,
		&cf.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return cf, nil
}

// UpdateCase updates a case file's mutable attributes
func (r *CaseRepository) UpdateCase(ctx context.Context, cf *models.CaseFile) error {
	cf.UpdatedAt = time.Now()

	query := `
		UPDATE cases
		SET title = $2, status = $3, description = $4, assigned_to = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		cf.ID,
		cf.Title,
		cf.Status,
		cf.Description,
		cf.AssignedTo,
		cf.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result, "case")
}

// DeleteCase removes a case file. The change history keeps its own record of
// the deletion; the row itself goes away.
func (r *CaseRepository) DeleteCase(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result, "case")
}

// ListCases retrieves case files with optional filters and pagination, newest
// first
func (r *CaseRepository) ListCases(ctx context.Context, filters CaseFilters, limit, offset int) ([]*models.CaseFile, int, error) {
	countQuery := `SELECT COUNT(*) FROM cases WHERE 1=1`
	query := caseColumns + ` FROM cases WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.ClientID != nil {
		countQuery += fmt.Sprintf(` AND client_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND client_id = $%d`, paramIndex)
		args = append(args, *filters.ClientID)
		paramIndex++
	}

	if filters.Status != nil {
		countQuery += fmt.Sprintf(` AND status = $%d`, paramIndex)
		query += fmt.Sprintf(` AND status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}

	if filters.AssignedTo != nil {
		countQuery += fmt.Sprintf(` AND assigned_to = $%d`, paramIndex)
		query += fmt.Sprintf(` AND assigned_to = $%d`, paramIndex)
		args = append(args, *filters.AssignedTo)
		paramIndex++
	}

	if filters.CreatedBy != nil {
		countQuery += fmt.Sprintf(` AND created_by = $%d`, paramIndex)
		query += fmt.Sprintf(` AND created_by = $%d`, paramIndex)
		args = append(args, *filters.CreatedBy)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	cases := make([]*models.CaseFile, 0)
	for rows.Next() {
		cf := &models.CaseFile{}
		err := rows.Scan(
			&cf.ID,
			&cf.ClientID,
			&cf.Title,
			&cf.Status,
			&cf.Description,
			&cf.AssignedTo,
			&cf.CreatedBy,
			&cf.CreatedAt,
			&cf.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		cases = append(cases, cf)
	}

	return cases, total, rows.Err()
}

const caseColumns = `
	SELECT id, client_id, title, status, description, assigned_to, created_by, created_at, updated_at`
