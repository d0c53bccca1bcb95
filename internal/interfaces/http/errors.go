package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/dto"
	"github.com/jhoicas/zatca-api/internal/domain"
)

// writeError traduce la taxonomía de errores de dominio a respuestas HTTP.
// Los rechazos de la autoridad devuelven 422 con las listas estructuradas;
// los fallos de transporte devuelven 502 (reintentable por el cliente).
func writeError(c *fiber.Ctx, err error) error {
	var (
		valErr   *domain.ValidationError
		credErr  *domain.CredentialError
		chainErr *domain.ChainIntegrityError
		rejErr   *domain.AuthorityRejection
		netErr   *domain.NetworkError
		cryErr   *domain.CryptoError
	)

	switch {
	case errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: valErr.Error()})
	case errors.As(err, &rejErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:    "AUTHORITY_REJECTION",
			Message: rejErr.Error(),
			Details: append(append([]string{}, rejErr.Errors...), rejErr.Warnings...),
		})
	case errors.As(err, &credErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CREDENTIAL", Message: credErr.Error()})
	case errors.As(err, &chainErr):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CHAIN_INTEGRITY", Message: chainErr.Error()})
	case errors.As(err, &netErr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "GATEWAY", Message: netErr.Error()})
	case errors.As(err, &cryErr):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "CRYPTO", Message: "fallo criptográfico"})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "no autorizado"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
