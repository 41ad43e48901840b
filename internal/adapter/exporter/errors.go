package exporter

import "errors"

// ErrUnknownFormat is returned for a feed format with no exporter.
var ErrUnknownFormat = errors.New("unknown export format")
