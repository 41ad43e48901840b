package domain

import "errors"

var (
	// ErrUnknownAdvisory is returned when IOC records reference an advisory that has not been upserted
	ErrUnknownAdvisory = errors.New("ioc references unknown advisory")
	// ErrAdvisoryNotFound is returned when an advisory id is not in the index
	ErrAdvisoryNotFound = errors.New("advisory not found")
	// ErrInvalidSource is returned for a source name other than structured or document
	ErrInvalidSource = errors.New("invalid ioc source")
	// ErrEmptyQuery is returned when a lookup is requested for an empty value
	ErrEmptyQuery = errors.New("lookup value cannot be empty")
)
