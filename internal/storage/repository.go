// Package storage is the SQL implementation of the document store. Every
// table is keyed by (user_id, id) and every statement is scoped by user_id.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"koin/internal/aggregate"
	"koin/internal/core"
	"koin/internal/log"
	"koin/internal/store"
)

// Repository implements store.Store on database/sql.
type Repository struct {
	store.Hub

	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

var (
	_ store.Store          = (*Repository)(nil)
	_ store.SnapshotReader = (*Repository)(nil)
)

// NewSQLiteRepository opens (creating if needed) the SQLite database at
// dbPath and migrates it.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return Open(SQLite, dbPath, logger)
}

// NewPostgresRepository connects to dsn and migrates the schema.
func NewPostgresRepository(dsn string, logger *log.Logger) (*Repository, error) {
	return Open(Postgres, dsn, logger)
}

// Open connects with the given dialect and migrates the schema.
func Open(d Dialect, dsn string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		// One writer at a time keeps SQLite transactions from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		dialect: d,
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *Repository) query(ctx context.Context, q queryer, userID, stmt string, args ...any) (*sql.Rows, error) {
	if err := store.CheckScope(userID); err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, r.dialect.Rebind(stmt), append([]any{userID}, args...)...)
}

// LoadSnapshot reads the four ledger collections inside one read
// transaction so a concurrent Apply is seen entirely or not at all.
func (r *Repository) LoadSnapshot(ctx context.Context, userID string) (aggregate.Snapshot, error) {
	if err := store.CheckScope(userID); err != nil {
		return aggregate.Snapshot{}, err
	}
	var opts *sql.TxOptions
	if r.dialect.Name == Postgres.Name {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	var s aggregate.Snapshot
	if s.Transactions, err = r.transactions(ctx, tx, userID); err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load %s: %w", store.Transactions, err)
	}
	if s.Categories, err = r.categories(ctx, tx, userID); err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load %s: %w", store.Categories, err)
	}
	if s.Debts, err = r.debts(ctx, tx, userID); err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load %s: %w", store.Debts, err)
	}
	if s.Receivables, err = r.receivables(ctx, tx, userID); err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load %s: %w", store.Receivables, err)
	}
	return s, tx.Commit()
}

func (r *Repository) Transactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.transactions(ctx, r.db, userID)
}

func (r *Repository) transactions(ctx context.Context, q queryer, userID string) ([]core.Transaction, error) {
	rows, err := r.query(ctx, q, userID, `
		SELECT id, amount, description, category_id, date, kind,
		       payment_method, related_card_id, related_receivable_id, shared
		FROM transactions WHERE user_id = ? ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	malformed := 0
	for rows.Next() {
		var (
			t            core.Transaction
			amount, date string
			kind         string
		)
		if err := rows.Scan(&t.ID, &amount, &t.Description, &t.CategoryID, &date, &kind,
			&t.PaymentMethod, &t.RelatedCardID, &t.RelatedReceivableID, &t.Shared); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var ok bool
		if t.Amount, ok = core.LenientMoney(amount); !ok {
			malformed++
		}
		t.Date, _ = core.ParseDate(date)
		// Unknown kinds are kept verbatim; aggregation skips them.
		t.Kind, _ = core.ParseKind(kind)
		out = append(out, t)
	}
	r.reportMalformed(ctx, userID, store.Transactions, malformed)
	return out, rows.Err()
}

func (r *Repository) Categories(ctx context.Context, userID string) ([]core.Category, error) {
	return r.categories(ctx, r.db, userID)
}

func (r *Repository) categories(ctx context.Context, q queryer, userID string) ([]core.Category, error) {
	rows, err := r.query(ctx, q, userID, `
		SELECT id, name, color, icon, classification, budget, target_amount, created_at
		FROM categories WHERE user_id = ? ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	malformed := 0
	for rows.Next() {
		var (
			c                         core.Category
			class, budget, target, ts string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &class, &budget, &target, &ts); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Classification, _ = core.ParseClassification(class)
		var okB, okT bool
		c.Budget, okB = core.LenientMoney(budget)
		c.TargetAmount, okT = core.LenientMoney(target)
		if !okB || !okT {
			malformed++
		}
		c.CreatedAt = parseTime(ts)
		out = append(out, c)
	}
	r.reportMalformed(ctx, userID, store.Categories, malformed)
	return out, rows.Err()
}

func (r *Repository) Debts(ctx context.Context, userID string) ([]core.Debt, error) {
	return r.debts(ctx, r.db, userID)
}

func (r *Repository) debts(ctx context.Context, q queryer, userID string) ([]core.Debt, error) {
	rows, err := r.query(ctx, q, userID, `
		SELECT id, institution, name, current_balance
		FROM debts WHERE user_id = ? ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	var out []core.Debt
	malformed := 0
	for rows.Next() {
		var (
			d       core.Debt
			balance string
		)
		if err := rows.Scan(&d.ID, &d.Institution, &d.Name, &balance); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		var ok bool
		if d.CurrentBalance, ok = core.LenientMoney(balance); !ok {
			malformed++
		}
		out = append(out, d)
	}
	r.reportMalformed(ctx, userID, store.Debts, malformed)
	return out, rows.Err()
}

func (r *Repository) Receivables(ctx context.Context, userID string) ([]core.Receivable, error) {
	return r.receivables(ctx, r.db, userID)
}

func (r *Repository) receivables(ctx context.Context, q queryer, userID string) ([]core.Receivable, error) {
	rows, err := r.query(ctx, q, userID, `
		SELECT id, amount, status, contact_name, description, date
		FROM receivables WHERE user_id = ? ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("query receivables: %w", err)
	}
	defer rows.Close()

	var out []core.Receivable
	malformed := 0
	for rows.Next() {
		var (
			rec                  core.Receivable
			amount, status, date string
		)
		if err := rows.Scan(&rec.ID, &amount, &status, &rec.ContactName, &rec.Description, &date); err != nil {
			return nil, fmt.Errorf("scan receivable: %w", err)
		}
		var ok bool
		if rec.Amount, ok = core.LenientMoney(amount); !ok {
			malformed++
		}
		rec.Status = core.ReceivableStatus(status)
		rec.Date, _ = core.ParseDate(date)
		out = append(out, rec)
	}
	r.reportMalformed(ctx, userID, store.Receivables, malformed)
	return out, rows.Err()
}

func (r *Repository) CreditLine(ctx context.Context, userID string) (core.CreditLine, error) {
	rows, err := r.query(ctx, r.db, userID, `
		SELECT credit_limit, pay_day, interest_rate, setup, categories
		FROM credit_lines WHERE user_id = ?`)
	if err != nil {
		return core.CreditLine{}, fmt.Errorf("query credit line: %w", err)
	}
	defer rows.Close()

	var line core.CreditLine
	if rows.Next() {
		var limit, rate, cats string
		if err := rows.Scan(&limit, &line.PayDay, &rate, &line.Setup, &cats); err != nil {
			return core.CreditLine{}, fmt.Errorf("scan credit line: %w", err)
		}
		line.Limit, _ = core.LenientMoney(limit)
		line.InterestRate, _ = decimal.NewFromString(rate)
		if line.Categories, err = decodeCardCategories(cats); err != nil {
			return core.CreditLine{}, fmt.Errorf("decode card categories: %w", err)
		}
	}
	return line, rows.Err()
}

func (r *Repository) CardCharges(ctx context.Context, userID string) ([]core.CardCharge, error) {
	rows, err := r.query(ctx, r.db, userID, `
		SELECT id, category_id, amount, kind, description, posted_at
		FROM card_charges WHERE user_id = ? ORDER BY posted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query card charges: %w", err)
	}
	defer rows.Close()

	var out []core.CardCharge
	for rows.Next() {
		var (
			c                core.CardCharge
			amount, kind, ts string
		)
		if err := rows.Scan(&c.ID, &c.CategoryID, &amount, &kind, &c.Description, &ts); err != nil {
			return nil, fmt.Errorf("scan card charge: %w", err)
		}
		c.Amount, _ = core.LenientMoney(amount)
		c.Kind = core.ChargeKind(kind)
		c.PostedAt = parseTime(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) reportMalformed(ctx context.Context, userID string, c store.Collection, n int) {
	if n == 0 {
		return
	}
	r.logger.WarnContext(ctx, "Non-numeric amounts read as zero",
		log.FieldUserID, userID, log.FieldCollection, string(c), log.FieldCount, n)
}

// Apply runs the batch in one SQL transaction and notifies observers after
// the commit.
func (r *Repository) Apply(ctx context.Context, userID string, b *store.Batch) error {
	if err := store.CheckScope(userID); err != nil {
		return err
	}
	if b.Len() == 0 {
		return store.ErrEmptyBatch
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, op := range b.Ops() {
		if err := r.exec(ctx, tx, userID, op); err != nil {
			return fmt.Errorf("op %d (%s %s/%s): %w", i, op.Type, op.Collection, op.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.DebugContext(ctx, "Batch committed", log.FieldUserID, userID, log.FieldCount, b.Len())
	if r.Watched(userID) {
		snap, err := store.Load(ctx, r, userID)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to load snapshot for observers",
				log.NewFields().WithUser(userID).WithError(err).ToSlice()...)
			return nil
		}
		r.Notify(userID, snap)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, tx *sql.Tx, userID string, op store.Op) error {
	q, args, err := statement(userID, op)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return err
	}
	if op.Type == store.OpSetCategory {
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

var deletable = map[store.Collection]string{
	store.Transactions: "transactions",
	store.Categories:   "categories",
	store.Debts:        "debts",
	store.Receivables:  "receivables",
	store.CardCharges:  "card_charges",
}

// statement returns the SQL and arguments for op, scoped to userID.
func statement(userID string, op store.Op) (string, []any, error) {
	switch op.Type {
	case store.OpDelete:
		table, ok := deletable[op.Collection]
		if !ok {
			return "", nil, fmt.Errorf("delete not supported on %s", op.Collection)
		}
		return "DELETE FROM " + table + " WHERE user_id = ? AND id = ?", []any{userID, op.ID}, nil
	case store.OpSetCategory:
		return "UPDATE transactions SET category_id = ? WHERE user_id = ? AND id = ?",
			[]any{op.CategoryID, userID, op.ID}, nil
	case store.OpPut:
		q, args, err := upsert(op)
		if err != nil {
			return "", nil, err
		}
		return q, append([]any{userID}, args...), nil
	}
	return "", nil, fmt.Errorf("unknown op type %d", op.Type)
}

// upsert returns the insert-or-replace statement for a put. The user id
// placeholder comes first and is not part of the returned arguments.
func upsert(op store.Op) (string, []any, error) {
	switch {
	case op.Transaction != nil:
		t := op.Transaction
		return `INSERT INTO transactions (user_id, id, amount, description, category_id, date, kind,
				payment_method, related_card_id, related_receivable_id, shared)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				amount = excluded.amount, description = excluded.description,
				category_id = excluded.category_id, date = excluded.date, kind = excluded.kind,
				payment_method = excluded.payment_method, related_card_id = excluded.related_card_id,
				related_receivable_id = excluded.related_receivable_id, shared = excluded.shared`,
			[]any{t.ID, t.Amount.String(), t.Description, t.CategoryID, t.Date.String(), string(t.Kind),
				t.PaymentMethod, t.RelatedCardID, t.RelatedReceivableID, t.Shared}, nil
	case op.Category != nil:
		c := op.Category
		return `INSERT INTO categories (user_id, id, name, color, icon, classification, budget, target_amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				name = excluded.name, color = excluded.color, icon = excluded.icon,
				classification = excluded.classification, budget = excluded.budget,
				target_amount = excluded.target_amount, created_at = excluded.created_at`,
			[]any{c.ID, c.Name, c.Color, c.Icon, string(c.Classification), c.Budget.String(),
				c.TargetAmount.String(), formatTime(c.CreatedAt)}, nil
	case op.Debt != nil:
		d := op.Debt
		return `INSERT INTO debts (user_id, id, institution, name, current_balance)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				institution = excluded.institution, name = excluded.name,
				current_balance = excluded.current_balance`,
			[]any{d.ID, d.Institution, d.Name, d.CurrentBalance.String()}, nil
	case op.Receivable != nil:
		rec := op.Receivable
		return `INSERT INTO receivables (user_id, id, amount, status, contact_name, description, date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				amount = excluded.amount, status = excluded.status, contact_name = excluded.contact_name,
				description = excluded.description, date = excluded.date`,
			[]any{rec.ID, rec.Amount.String(), string(rec.Status), rec.ContactName, rec.Description, rec.Date.String()}, nil
	case op.CreditLine != nil:
		l := op.CreditLine
		cats, err := encodeCardCategories(l.Categories)
		if err != nil {
			return "", nil, err
		}
		return `INSERT INTO credit_lines (user_id, credit_limit, pay_day, interest_rate, setup, categories)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				credit_limit = excluded.credit_limit, pay_day = excluded.pay_day,
				interest_rate = excluded.interest_rate, setup = excluded.setup,
				categories = excluded.categories`,
			[]any{l.Limit.String(), l.PayDay, l.InterestRate.String(), l.Setup, cats}, nil
	case op.Charge != nil:
		c := op.Charge
		return `INSERT INTO card_charges (user_id, id, category_id, amount, kind, description, posted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				category_id = excluded.category_id, amount = excluded.amount, kind = excluded.kind,
				description = excluded.description, posted_at = excluded.posted_at`,
			[]any{c.ID, c.CategoryID, c.Amount.String(), string(c.Kind), c.Description, formatTime(c.PostedAt)}, nil
	}
	return "", nil, fmt.Errorf("put without payload on %s", op.Collection)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
