package domain

import "errors"

var (
	ErrMissingIdentity = errors.New("missing_identity")
	ErrInvalidProduct  = errors.New("invalid_product")
)
