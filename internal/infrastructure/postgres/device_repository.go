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

var _ repository.DeviceRepository = (*DeviceRepo)(nil)

// DeviceRepo implementación de DeviceRepository sobre PostgreSQL (usable con
// pool o tx).
type DeviceRepo struct {
	q Querier
}

// NewDeviceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDeviceRepository(q Querier) *DeviceRepo {
	return &DeviceRepo{q: q}
}

const deviceColumns = `
	id, vat_number, cr_number, legal_name, street, building_number,
	plot_identification, city_subdivision, city, postal_zone, country,
	business_category, common_name, solution_name, solution_version,
	status, request_id, disposition_message, security_token, secret,
	private_key, public_key, csr, errors, invoice_counter,
	created_at, updated_at`

// Create persiste el dispositivo recién registrado.
func (r *DeviceRepo) Create(ctx context.Context, d *entity.Device) error {
	query := `
		INSERT INTO zatca_devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.Profile.VATNumber, d.Profile.CRNumber, d.Profile.LegalName,
		d.Profile.Street, d.Profile.BuildingNumber, d.Profile.PlotIdentification,
		d.Profile.CitySubdivision, d.Profile.City, d.Profile.PostalZone,
		d.Profile.Country, d.Profile.BusinessCategory, d.Profile.CommonName,
		d.Profile.SolutionName, d.Profile.SolutionVersion,
		d.Status, nullIfEmpty(d.RequestID), nullIfEmpty(d.DispositionMessage),
		nullIfEmpty(d.SecurityToken), nullIfEmpty(d.Secret),
		d.PrivateKeyPEM, d.PublicKeyPEM, d.CSRPEM, d.Errors, d.InvoiceCounter,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("el dispositivo ya existe: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

// Update actualiza credenciales, estado y contador del dispositivo.
func (r *DeviceRepo) Update(ctx context.Context, d *entity.Device) error {
	query := `
		UPDATE zatca_devices
		SET status              = $2,
		    request_id          = COALESCE($3, request_id),
		    disposition_message = COALESCE($4, disposition_message),
		    security_token      = COALESCE($5, security_token),
		    secret              = COALESCE($6, secret),
		    errors              = $7,
		    invoice_counter     = $8,
		    updated_at          = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		d.ID, d.Status,
		nullIfEmpty(d.RequestID), nullIfEmpty(d.DispositionMessage),
		nullIfEmpty(d.SecurityToken), nullIfEmpty(d.Secret),
		d.Errors, d.InvoiceCounter, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispositivo %s: %w", d.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID obtiene un dispositivo por su ID.
func (r *DeviceRepo) GetByID(ctx context.Context, id string) (*entity.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM zatca_devices WHERE id = $1`
	return r.scanDevice(r.q.QueryRow(ctx, query, id))
}

// GetByVATNumber obtiene el dispositivo vigente (no reemplazado) del número
// de IVA.
func (r *DeviceRepo) GetByVATNumber(ctx context.Context, vat string) (*entity.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM zatca_devices
		WHERE vat_number = $1 AND NOT superseded
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanDevice(r.q.QueryRow(ctx, query, vat))
}

// Supersede marca como reemplazados todos los dispositivos vigentes del
// número de IVA; un registro nuevo siempre parte de cero.
func (r *DeviceRepo) Supersede(ctx context.Context, vat string) error {
	query := `UPDATE zatca_devices SET superseded = TRUE, updated_at = NOW() WHERE vat_number = $1 AND NOT superseded`
	if _, err := r.q.Exec(ctx, query, vat); err != nil {
		return fmt.Errorf("supersede devices: %w", err)
	}
	return nil
}

func (r *DeviceRepo) scanDevice(row pgx.Row) (*entity.Device, error) {
	var d entity.Device
	var requestID, disposition, token, secret *string
	err := row.Scan(
		&d.ID, &d.Profile.VATNumber, &d.Profile.CRNumber, &d.Profile.LegalName,
		&d.Profile.Street, &d.Profile.BuildingNumber, &d.Profile.PlotIdentification,
		&d.Profile.CitySubdivision, &d.Profile.City, &d.Profile.PostalZone,
		&d.Profile.Country, &d.Profile.BusinessCategory, &d.Profile.CommonName,
		&d.Profile.SolutionName, &d.Profile.SolutionVersion,
		&d.Status, &requestID, &disposition, &token, &secret,
		&d.PrivateKeyPEM, &d.PublicKeyPEM, &d.CSRPEM, &d.Errors, &d.InvoiceCounter,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	d.RequestID = derefStr(requestID)
	d.DispositionMessage = derefStr(disposition)
	d.SecurityToken = derefStr(token)
	d.Secret = derefStr(secret)
	return &d, nil
}
