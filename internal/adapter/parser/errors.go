package parser

import "errors"

var (
	// ErrMalformedDocument means the artifact is not JSON, or its top level is
	// neither a list of objects nor a bundle carrying an "objects" list.
	ErrMalformedDocument = errors.New("malformed structured document")

	// ErrUnreadableDocument means no page text could be read from a document artifact.
	ErrUnreadableDocument = errors.New("unreadable document")
)
