// Package sqlite persists position groups and their order records.
//
// A position group is allocated by NextGroupID before its entry order is
// sent; it only becomes visible to RecentTrades once its ENTRY record has
// been appended, so a group whose entry was rejected never counts as open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ignatiusgoh/Bollinger-band-entry-public/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Ledger is the SQLite-backed TradeLedger, GroupCloser and GroupSequencer.
type Ledger struct {
	db     *sql.DB
	symbol string
}

// DB returns the underlying sql.DB for health checks.
func (l *Ledger) DB() *sql.DB { return l.db }

// Open creates (or opens) the ledger database at dbPath with WAL mode and schema.
func Open(dbPath, symbol string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite ledger opened", slog.String("path", dbPath), slog.String("symbol", symbol))
	return &Ledger{db: db, symbol: symbol}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS position_groups (
			group_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			direction    TEXT    NOT NULL DEFAULT '',
			realized_pnl REAL    NOT NULL DEFAULT 0,
			is_closed    INTEGER NOT NULL DEFAULT 0,
			exit_time    INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trade_records (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id            INTEGER NOT NULL REFERENCES position_groups(group_id),
			order_id            TEXT    NOT NULL,
			order_kind          TEXT    NOT NULL,
			direction           TEXT    NOT NULL,
			quantity            REAL    NOT NULL,
			price               REAL    NOT NULL,
			breakeven_threshold REAL    NOT NULL DEFAULT 0,
			breakeven_price     REAL    NOT NULL DEFAULT 0,
			created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trade_records_group ON trade_records(group_id);
	`)
	return err
}

// NextGroupID allocates a new position group. AUTOINCREMENT guarantees ids
// are unique and never reused, even across restarts or after deletes.
func (l *Ledger) NextGroupID(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO position_groups (symbol, created_at) VALUES (?, ?)`,
		l.symbol, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite allocate group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite allocate group: %w", err)
	}
	return id, nil
}

// AppendRecord inserts one order record. The ENTRY record also stamps the
// group's direction, creating the group row when the id came from elsewhere.
func (l *Ledger) AppendRecord(ctx context.Context, rec model.TradeRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trade_records
			(group_id, order_id, order_kind, direction, quantity, price, breakeven_threshold, breakeven_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.GroupID, rec.OrderID, string(rec.Kind), string(rec.Direction),
		rec.Quantity, rec.Price, rec.BreakevenThreshold, rec.BreakevenPrice, created.UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlite insert record: %w", err)
	}

	// Ids handed out by another sequencer have no group row yet.
	if rec.Kind == model.OrderKindEntry {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO position_groups (group_id, symbol, direction, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(group_id) DO UPDATE SET direction = excluded.direction`,
			rec.GroupID, l.symbol, string(rec.Direction), created.UnixMilli()); err != nil {
			return fmt.Errorf("sqlite stamp group: %w", err)
		}
	}
	return tx.Commit()
}

// RecentTrades returns up to limit groups that have an ENTRY record, newest first.
func (l *Ledger) RecentTrades(ctx context.Context, limit int) ([]model.TradeSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT g.group_id, g.direction, g.realized_pnl, g.is_closed, g.exit_time
		FROM position_groups g
		WHERE EXISTS (
			SELECT 1 FROM trade_records r
			WHERE r.group_id = g.group_id AND r.order_kind = ?
		)
		ORDER BY g.group_id DESC
		LIMIT ?
	`, string(model.OrderKindEntry), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query groups: %w", err)
	}
	defer rows.Close()

	var out []model.TradeSummary
	for rows.Next() {
		var (
			s      model.TradeSummary
			dir    string
			closed int
			exitMs int64
		)
		if err := rows.Scan(&s.GroupID, &dir, &s.RealizedPnL, &closed, &exitMs); err != nil {
			return nil, fmt.Errorf("sqlite scan group: %w", err)
		}
		s.Direction = model.Direction(dir)
		s.Closed = closed != 0
		if exitMs > 0 {
			s.ExitTime = time.UnixMilli(exitMs).UTC()
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MaxGroupID returns the highest group id ever stored, or 0 for an empty ledger.
func (l *Ledger) MaxGroupID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(group_id) FROM position_groups`).Scan(&id); err != nil {
		return 0, fmt.Errorf("sqlite max group: %w", err)
	}
	return id.Int64, nil
}

// ErrUnknownGroup is returned by CloseGroup for an id that was never allocated.
var ErrUnknownGroup = errors.New("unknown position group")

// CloseGroup marks a group closed with its realized PnL and exit time.
func (l *Ledger) CloseGroup(ctx context.Context, groupID int64, pnl float64, exitAt time.Time) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE position_groups SET realized_pnl = ?, is_closed = 1, exit_time = ? WHERE group_id = ?`,
		pnl, exitAt.UnixMilli(), groupID)
	if err != nil {
		return fmt.Errorf("sqlite close group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close group %d: %w", groupID, ErrUnknownGroup)
	}
	return nil
}

// Records returns every record of a group in insertion order.
func (l *Ledger) Records(ctx context.Context, groupID int64) ([]model.TradeRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT group_id, order_id, order_kind, direction, quantity, price,
		       breakeven_threshold, breakeven_price, created_at
		FROM trade_records
		WHERE group_id = ?
		ORDER BY id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query records: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var (
			r         model.TradeRecord
			kind, dir string
			createdMs int64
		)
		if err := rows.Scan(&r.GroupID, &r.OrderID, &kind, &dir, &r.Quantity, &r.Price,
			&r.BreakevenThreshold, &r.BreakevenPrice, &createdMs); err != nil {
			return nil, fmt.Errorf("sqlite scan record: %w", err)
		}
		r.Kind = model.OrderKind(kind)
		r.Direction = model.Direction(dir)
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
