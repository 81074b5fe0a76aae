package storage

// sqlite.go: ledger persistido en SQLite.
//
// Estrategia:
//   - `ledger_state`: una sola fila (id=1) con el documento JSON completo.
//     Es la fuente que se lee al arrancar; se reemplaza entera en cada mutación.
//   - `positions`: espejo de una fila por trade (UPSERT) para consultas ad-hoc
//     y para el historial de `-status`.
//   - Ambos se escriben en la misma transacción: o se guarda todo o nada.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    balance    REAL    NOT NULL,
    counter    INTEGER NOT NULL,
    document   TEXT    NOT NULL,
    updated_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    trade_id       TEXT PRIMARY KEY,
    market_id      TEXT NOT NULL UNIQUE,
    asset          TEXT NOT NULL,
    direction      TEXT NOT NULL,
    market_type    TEXT NOT NULL,
    status         TEXT NOT NULL,
    entry_price    REAL NOT NULL,
    shares         REAL NOT NULL,
    size_usdc      REAL NOT NULL,
    sell_price     REAL,
    pnl            REAL,
    entry_at       TEXT NOT NULL,
    close_at       TEXT NOT NULL,
    resolved_at    TEXT,
    data           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_entry  ON positions(entry_at DESC);
`

// SQLiteStore implementa ports.LedgerStore y ports.TradeHistory usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load lee el documento del ledger. ok=false si la tabla está vacía.
func (s *SQLiteStore) Load(ctx context.Context) (domain.LedgerDocument, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM ledger_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerDocument{}, false, nil
	}
	if err != nil {
		return domain.LedgerDocument{}, false, fmt.Errorf("storage.SQLiteStore.Load: %w", err)
	}

	var doc domain.LedgerDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.LedgerDocument{}, false, fmt.Errorf("storage.SQLiteStore.Load: decode: %w", err)
	}
	return doc, true, nil
}

// Save reemplaza el documento y sincroniza el espejo de posiciones en una transacción.
func (s *SQLiteStore) Save(ctx context.Context, doc domain.LedgerDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage.SQLiteStore.Save: encode: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SQLiteStore.Save: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_state (id, balance, counter, document, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance    = excluded.balance,
			counter    = excluded.counter,
			document   = excluded.document,
			updated_at = excluded.updated_at
	`, doc.Balance, doc.Counter, string(raw), formatTime(time.Now())); err != nil {
		return fmt.Errorf("storage.SQLiteStore.Save: upsert state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions
			(trade_id, market_id, asset, direction, market_type, status,
			 entry_price, shares, size_usdc, sell_price, pnl,
			 entry_at, close_at, resolved_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			status      = excluded.status,
			sell_price  = excluded.sell_price,
			pnl         = excluded.pnl,
			resolved_at = excluded.resolved_at,
			data        = excluded.data
	`)
	if err != nil {
		return fmt.Errorf("storage.SQLiteStore.Save: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range doc.Positions {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("storage.SQLiteStore.Save: encode %s: %w", p.TradeID, err)
		}
		var resolvedAt *string
		if p.ResolvedAt != nil {
			v := formatTime(*p.ResolvedAt)
			resolvedAt = &v
		}
		if _, err := stmt.ExecContext(ctx,
			p.TradeID,
			p.MarketID,
			p.Asset,
			string(p.Direction),
			string(p.MarketType),
			string(p.Status),
			p.EntryPrice,
			p.Shares,
			p.Size,
			p.SellPrice,
			p.PnL,
			formatTime(p.EntryAt),
			formatTime(p.CloseAt),
			resolvedAt,
			string(data),
		); err != nil {
			return fmt.Errorf("storage.SQLiteStore.Save: upsert %s: %w", p.TradeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SQLiteStore.Save: commit: %w", err)
	}
	return nil
}

// Recent devuelve los últimos limit trades por fecha de entrada, del más nuevo al más viejo.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM positions
		ORDER BY entry_at DESC, trade_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.SQLiteStore.Recent: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage.SQLiteStore.Recent: scan row: %w", err)
		}
		var p domain.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("storage.SQLiteStore.Recent: decode: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountByStatus devuelve el número de trades del espejo por estado.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[domain.PositionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM positions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("storage.SQLiteStore.CountByStatus: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.PositionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("storage.SQLiteStore.CountByStatus: scan: %w", err)
		}
		counts[domain.PositionStatus(status)] = n
	}
	return counts, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
