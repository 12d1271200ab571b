package domain

import "errors"

var (
	ErrImageRequired      = errors.New("image is required")
	ErrInvalidImage       = errors.New("invalid image")
	ErrMissingURL         = errors.New("url is required")
	ErrUnsafeURL          = errors.New("unsafe url")
	ErrProviderFailure    = errors.New("provider failure")
	ErrUnsupportedDialect = errors.New("unsupported upstream dialect")
)
