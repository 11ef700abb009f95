package classify

import "errors"

var (
	// ErrUnsupportedFormat is returned when no text can be extracted for a MIME type.
	ErrUnsupportedFormat = errors.New("unsupported format for text extraction")

	// ErrEngineRequired is returned when a Classifier is created without an engine.
	ErrEngineRequired = errors.New("engine is required")
)
