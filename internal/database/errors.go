package database

import (
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	constraintPerformerSlug     = "performers_slug_key"
	constraintPerformerUsername = "performers_username_lower_idx"
	constraintRoomPkey          = "rooms_pkey"
)

var (
	ErrVersionConflict   = errors.New("room was modified concurrently")
	ErrDuplicateSlug     = errors.New("slug already in use")
	ErrDuplicateUsername = errors.New("username already in use")
)

// mapError translates unique violations into domain errors; every other
// error is returned unchanged.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}

	switch pqErr.Constraint {
	case constraintPerformerSlug, constraintRoomPkey:
		return ErrDuplicateSlug
	case constraintPerformerUsername:
		return ErrDuplicateUsername
	default:
		return err
	}
}
