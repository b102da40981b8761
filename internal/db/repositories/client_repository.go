// client_repository.go implements ClientRepository for tenant records.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ErrClientCodeExists is returned when creating a client with a code that is
// already taken.
var ErrClientCodeExists = errors.New("a client with this code already exists")

// ClientRepository handles client (tenant) database operations
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new ClientRepository
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// CreateClient creates a new client
func (r *ClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	client.CreatedAt = time.Now()
	client.UpdatedAt = time.Now()

	query := `
		INSERT INTO clients (id, name, code, notes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.Code,
		client.Notes,
		client.Active,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrClientCodeExists
	}
	return err
}

// GetClientByID retrieves a client by ID
func (r *ClientRepository) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	query := clientColumns + ` FROM clients WHERE id = $1`
	return r.getClient(ctx, query, id)
}

// GetClientByCode retrieves a client by its short code
func (r *ClientRepository) GetClientByCode(ctx context.Context, code string) (*models.Client, error) {
	query := clientColumns + ` FROM clients WHERE code = $1`
	return r.getClient(ctx, query, code)
}

func (r *ClientRepository) getClient(ctx context.Context, query string, arg any) (*models.Client, error) {
	client := &models.Client{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&client.ID,
		&client.Name,
		&client.Code,
		&client.Notes,
		&client.Active,
		&client.CreatedAt,
		&client.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return client, nil
}

// UpdateClient updates a client's mutable attributes
func (r *ClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now()

	query := `
		UPDATE clients
		SET name = $2, notes = $3, active = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.Notes,
		client.Active,
		client.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result, "client")
}

// ListClients retrieves clients with pagination, newest first. Inactive
// clients are included unless activeOnly is set.
func (r *ClientRepository) ListClients(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Client, int, error) {
	countQuery := `SELECT COUNT(*) FROM clients`
	query := clientColumns + ` FROM clients`
	if activeOnly {
		countQuery += ` WHERE active = TRUE`
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clients := make([]*models.Client, 0)
	for rows.Next() {
		client := &models.Client{}
		err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.Code,
			&client.Notes,
			&client.Active,
			&client.CreatedAt,
			&client.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, client)
	}

	return clients, total, rows.Err()
}

const clientColumns = `
	SELECT id, name, code, notes, active, created_at, updated_at`
