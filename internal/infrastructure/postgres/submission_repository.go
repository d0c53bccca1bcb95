package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
)

var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

// SubmissionRepo implementación de SubmissionRepository sobre PostgreSQL.
type SubmissionRepo struct {
	q Querier
}

// NewSubmissionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubmissionRepository(q Querier) *SubmissionRepo {
	return &SubmissionRepo{q: q}
}

const submissionColumns = `
	id, device_id, invoice_number, uuid, icv, invoice_hash,
	previous_invoice_hash, signed_xml, qr_code, status,
	warnings, errors, raw_response, submitted_at, created_at`

// Create persiste el envío firmado antes de tocarse la red: si el proceso
// muere a mitad del envío, el documento queda auditable.
func (r *SubmissionRepo) Create(ctx context.Context, s *entity.Submission) error {
	query := `
		INSERT INTO zatca_submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		s.ID, s.DeviceID, s.InvoiceNumber, s.UUID, s.ICV, s.InvoiceHash,
		s.PreviousInvoiceHash, s.SignedXML, s.QRCode, s.Status,
		s.Warnings, s.Errors, s.RawResponse, s.SubmittedAt, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("el ICV %d ya existe para el dispositivo: %w", s.ICV, domain.ErrConflict)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Update actualiza el resultado del envío.
func (r *SubmissionRepo) Update(ctx context.Context, s *entity.Submission) error {
	query := `
		UPDATE zatca_submissions
		SET status       = $2,
		    warnings     = $3,
		    errors       = $4,
		    raw_response = $5,
		    submitted_at = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, s.ID, s.Status, s.Warnings, s.Errors, s.RawResponse, s.SubmittedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("envío %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID obtiene un envío por su ID.
func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*entity.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM zatca_submissions WHERE id = $1`
	return r.scanSubmission(r.q.QueryRow(ctx, query, id))
}

// GetChainHead devuelve el último envío ACEPTADO del dispositivo: los fallidos
// no encadenan. ErrNotFound con cadena vacía (el caller usa el hash génesis).
func (r *SubmissionRepo) GetChainHead(ctx context.Context, deviceID string) (*entity.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM zatca_submissions
		WHERE device_id = $1 AND status IN ($2, $3)
		ORDER BY icv DESC
		LIMIT 1`
	return r.scanSubmission(r.q.QueryRow(ctx, query, deviceID,
		entity.SubmissionStatusReported, entity.SubmissionStatusCleared))
}

// ListByDevice lista los envíos del dispositivo, más recientes primero.
func (r *SubmissionRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entity.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + submissionColumns + `
		FROM zatca_submissions
		WHERE device_id = $1
		ORDER BY icv DESC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Submission
	for rows.Next() {
		s, err := r.scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubmissionRepo) scanSubmission(row pgx.Row) (*entity.Submission, error) {
	var s entity.Submission
	err := row.Scan(
		&s.ID, &s.DeviceID, &s.InvoiceNumber, &s.UUID, &s.ICV, &s.InvoiceHash,
		&s.PreviousInvoiceHash, &s.SignedXML, &s.QRCode, &s.Status,
		&s.Warnings, &s.Errors, &s.RawResponse, &s.SubmittedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &s, nil
}
