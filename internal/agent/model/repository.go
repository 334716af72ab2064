package model

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by a DocumentRepository that has nothing stored yet.
var ErrDocumentNotFound = errors.New("memory document not found")

// DocumentRepository persists the memory document as one serialized blob.
type DocumentRepository interface {
	// Load returns the stored document or ErrDocumentNotFound.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored document.
	Save(ctx context.Context, doc []byte) error
}

// Completer turns a prompt into text. Implementations report failures as
// errx model errors; callers always have a fallback.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
