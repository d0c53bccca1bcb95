// Errores de dominio del cliente ZATCA. Cada categoría define si la operación
// es reintentable y qué información de auditoría debe conservarse.

package domain

import (
	"errors"
	"fmt"
)

// Errores sentinela genéricos (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrConflict     = errors.New("conflicto con el estado actual")
	ErrUnauthorized = errors.New("no autorizado")
)

// ValidationError entrada local malformada o incompleta. Nunca se reintenta.
type ValidationError struct {
	Field  string // campo que falló (vacío si aplica al documento completo)
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validación: campo %q: %s", e.Field, e.Reason)
	}
	return "validación: " + e.Reason
}

// NewValidationError construye un ValidationError para un campo concreto.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// CredentialError el dispositivo no existe, no está activo, o la autoridad
// rechazó la emisión/renovación del CSID. Fatal para la operación en curso.
// RawResponse conserva el payload crudo de la autoridad para auditoría.
type CredentialError struct {
	Reason      string
	RawResponse []byte
	Err         error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return "credencial: " + e.Reason + ": " + e.Err.Error()
	}
	return "credencial: " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }

// CryptoError fallo de llave o de la primitiva de firma. Fatal.
type CryptoError struct {
	Op  string // etapa: "parse-key", "sign", "parse-cert"...
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("criptografía: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// ChainIntegrityError el hash previo no coincide con la cabeza de la cadena
// persistida. Fatal: nunca se resuelve en silencio.
type ChainIntegrityError struct {
	DeviceID string
	Expected string // invoice_hash de la última factura enviada
	Got      string // previous_invoice_hash que traía el documento
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("cadena de hashes rota para el dispositivo %s: esperado %s, recibido %s",
		e.DeviceID, e.Expected, e.Got)
}

// NetworkError fallo de transporte contra la pasarela. El caller puede
// reintentar el envío completo: el documento y su hash son deterministas.
type NetworkError struct {
	Op  string // "submit-csr", "submit-invoice", "issue-csid"...
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("red: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthorityRejection rechazo no-transporte de la autoridad, con las listas
// estructuradas de advertencias/errores. Se expone tal cual al caller; no se
// reintenta automáticamente.
type AuthorityRejection struct {
	Status      string // reportingStatus / clearanceStatus / dispositionMessage
	Warnings    []string
	Errors      []string
	RawResponse []byte // cuerpo crudo devuelto por la autoridad (auditoría)
}

func (e *AuthorityRejection) Error() string {
	return fmt.Sprintf("rechazo de la autoridad (%s): %d errores, %d advertencias",
		e.Status, len(e.Errors), len(e.Warnings))
}
