package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/support-router/server/internal/agent/model"
	logx "github.com/support-router/server/pkg/logger"
)

// FileDocumentRepository keeps the memory document in a JSON file. Saves go
// through a temp file and rename so a crash never leaves a half-written file.
type FileDocumentRepository struct {
	path string
}

func NewFileDocumentRepository(path string) *FileDocumentRepository {
	return &FileDocumentRepository{path: path}
}

func (r *FileDocumentRepository) Load(ctx context.Context) ([]byte, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("read memory document: %w", err)
	}
	return b, nil
}

func (r *FileDocumentRepository) Save(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logx.Warn().Err(rmErr).Str("path", tmpName).Msg("failed to remove temp memory file")
		}
	}

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write memory document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync memory document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close memory document: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("replace memory document: %w", err)
	}
	return nil
}

var _ model.DocumentRepository = (*FileDocumentRepository)(nil)
