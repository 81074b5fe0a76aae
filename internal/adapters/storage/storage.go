// Package storage contiene los backends de persistencia del ledger.
package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// Backend agrupa lo que el resto del bot necesita de un store.
type Backend interface {
	ports.LedgerStore
	ports.TradeHistory
	Close() error
}

// StatusCounter lo implementan los backends que pueden agregar el historial
// por estado sin cargar cada trade (solo sqlite).
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.PositionStatus]int, error)
}

// Open abre el backend configurado: "json" o "sqlite".
func Open(kind, path string) (Backend, error) {
	switch kind {
	case "", "json":
		return jsonBackend{NewJSONStore(path)}, nil
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("storage.Open: unknown backend %q", kind)
}

type jsonBackend struct {
	*JSONStore
}

func (jsonBackend) Close() error { return nil }
