package document

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedFormat is returned for documents the index cannot extract text from.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrUnreadable is returned for documents whose content is not valid text.
	ErrUnreadable = errors.New("document is not readable text")
	// ErrEmptyDocument is returned when a document contains no searchable text.
	ErrEmptyDocument = errors.New("document has no searchable text")
)

// SearchTool answers free-text queries against one document.
type SearchTool interface {
	Name() string
	Description() string
	Query(ctx context.Context, text string) (string, error)
	Close() error
}

// Factory builds a SearchTool for a document.
type Factory interface {
	Build(ctx context.Context, h Handle) (SearchTool, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, h Handle) (SearchTool, error)

func (f FactoryFunc) Build(ctx context.Context, h Handle) (SearchTool, error) { return f(ctx, h) }
