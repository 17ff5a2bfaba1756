package apperrors

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes surfaced to clients
const (
	pqUniqueViolation     = "23505"
	pqNotNullViolation    = "23502"
	pqCheckViolation      = "23514"
	pqForeignKeyViolation = "23503"
	pqInvalidText         = "22P02"
	pqInvalidDatetime     = "22007"
	pqNumericOutOfRange   = "22003"
	pqStringTooLong       = "22001"
	pqRLSViolation        = "42501"
)

// FromPostgres classifies a driver error. Constraint and input errors become
// validation or conflict errors; RLS rejections become forbidden. Anything
// else is returned unchanged.
func FromPostgres(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		msg := "Duplicate value violates unique constraint"
		if pqErr.Constraint != "" {
			msg = fmt.Sprintf("Duplicate value violates unique constraint %q", pqErr.Constraint)
		}
		return Conflict(msg).Wrap(err)
	case pqNotNullViolation:
		return Validationf("Field '%s' is required", pqErr.Column).Wrap(err)
	case pqCheckViolation, pqForeignKeyViolation:
		return Validation(pqErr.Message).Wrap(err)
	case pqInvalidText, pqInvalidDatetime, pqNumericOutOfRange, pqStringTooLong:
		return Validation(pqErr.Message).Wrap(err)
	case pqRLSViolation:
		return Forbidden("Row-level security policy rejected the operation").Wrap(err)
	}
	return err
}
