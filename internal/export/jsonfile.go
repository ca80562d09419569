package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mython/internal/core"
	"mython/internal/ledger"
)

// JSONFile writes the list in its persisted JSON shape to a single file.
type JSONFile struct {
	filename string
}

func NewJSONFile(filename string) *JSONFile {
	return &JSONFile{filename: filename}
}

func (f *JSONFile) Name() string { return "jsonfile:" + f.filename }

func (f *JSONFile) Write(_ context.Context, txs []core.Transaction) error {
	data, err := ledger.Encode(txs)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod export: %w", err)
	}
	return os.Rename(tmp.Name(), f.filename)
}
