package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// JSONStore persiste el ledger como un único documento JSON
// ({balance, counter, positions}). Cada Save reescribe el archivo completo
// vía archivo temporal + rename, así un crash nunca deja un documento a medias.
type JSONStore struct {
	path string
}

// NewJSONStore crea un store sobre path. El archivo se crea en el primer Save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path devuelve la ruta del documento.
func (s *JSONStore) Path() string {
	return s.path
}

// Load lee el documento. ok=false si el archivo no existe.
func (s *JSONStore) Load(_ context.Context) (domain.LedgerDocument, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.LedgerDocument{}, false, nil
	}
	if err != nil {
		return domain.LedgerDocument{}, false, fmt.Errorf("storage.JSONStore.Load: read %q: %w", s.path, err)
	}

	var doc domain.LedgerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.LedgerDocument{}, false, fmt.Errorf("storage.JSONStore.Load: parse %q: %w", s.path, err)
	}
	return doc, true, nil
}

// Save reemplaza el documento de forma atómica.
func (s *JSONStore) Save(_ context.Context, doc domain.LedgerDocument) error {
	if doc.Positions == nil {
		doc.Positions = []domain.Position{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.JSONStore.Save: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage.JSONStore.Save: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op después del rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage.JSONStore.Save: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage.JSONStore.Save: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage.JSONStore.Save: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("storage.JSONStore.Save: rename: %w", err)
	}
	return nil
}

// Recent devuelve los últimos limit trades por fecha de entrada.
func (s *JSONStore) Recent(ctx context.Context, limit int) ([]domain.Position, error) {
	doc, _, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	ps := doc.Positions
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].EntryAt.After(ps[j].EntryAt)
	})
	if limit > 0 && len(ps) > limit {
		ps = ps[:limit]
	}
	return ps, nil
}
