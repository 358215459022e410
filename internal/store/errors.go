package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound signals an unknown SKU, channel, or config row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSKU signals a mapping already exists for the SKU.
	ErrDuplicateSKU = errors.New("sku already mapped")

	// ErrDuplicateChannel signals the (platform, listing_id) pair is
	// already linked to a mapping.
	ErrDuplicateChannel = errors.New("channel already linked")
)

const uniqueViolation = "23505"

// translateConstraint converts Postgres unique-violation errors into the
// sentinel errors callers match with errors.Is.
func translateConstraint(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "channel_mappings_sku_key":
		return ErrDuplicateSKU
	case "channel_entries_platform_listing_key":
		return ErrDuplicateChannel
	}
	return err
}
