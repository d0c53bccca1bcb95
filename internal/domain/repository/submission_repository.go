package repository

import (
	"context"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// SubmissionRepository define el puerto de persistencia para envíos de factura.
type SubmissionRepository interface {
	Create(ctx context.Context, s *entity.Submission) error
	// Update persiste el resultado del envío: status, warnings, errors,
	// raw_response, submitted_at. Los registros reported/cleared son inmutables.
	Update(ctx context.Context, s *entity.Submission) error
	GetByID(ctx context.Context, id string) (*entity.Submission, error)
	// GetChainHead devuelve la última factura enviada con éxito del dispositivo
	// (la cabeza de la cadena de hashes), o nil si nunca ha facturado.
	GetChainHead(ctx context.Context, deviceID string) (*entity.Submission, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entity.Submission, error)
}
