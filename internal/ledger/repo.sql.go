package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. All
// mutations on an item happen under its exclusive row lock.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, code string) (Item, error)
	UpdateItemQty(ctx context.Context, itemID int64, qty int) error
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	NextSlipNo(ctx context.Context) (string, error)
	InsertSlip(ctx context.Context, slip Slip) (int64, error)
	InsertSlipLine(ctx context.Context, line SlipLine) error
	UpsertImportRecord(ctx context.Context, rec ImportRecord) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. Row
// locks acquired through GetItemForUpdate serialize concurrent mutators of
// the same item while leaving other items untouched.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListItems returns items matching the filter ordered by section and code.
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_code, section, description, part_type, min_level, actual_qty, updated_at
FROM inventory_items
WHERE ($1 = '' OR item_code ILIKE '%'||$1||'%' OR description ILIKE '%'||$1||'%' OR section ILIKE '%'||$1||'%')
  AND (NOT $2 OR actual_qty <= min_level)
ORDER BY section ASC, item_code ASC`, filter.Search, filter.LowStockOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Code, &item.Section, &item.Description, &item.PartType, &item.MinLevel, &item.ActualQty, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// usageQuery aggregates consumption transactions per item within the period.
// The period bounds carry explicit casts: the extended protocol prepares the
// statement without parameter types, and an all-unknown COALESCE would
// otherwise resolve to text, which has no comparison against timestamptz.
const usageQuery = `SELECT i.item_code, i.description, COALESCE(SUM(-t.qty_change), 0) AS total_used, COUNT(t.id) AS tx_count
FROM inventory_transactions t
JOIN inventory_items i ON i.id = t.item_id
WHERE t.tx_type = 'use'
  AND t.created_at >= COALESCE($1::timestamptz, '-infinity')
  AND t.created_at <= COALESCE($2::timestamptz, 'infinity')
GROUP BY i.item_code, i.description
ORDER BY total_used DESC, i.item_code ASC`

// Usage aggregates consumption transactions per item within the period.
func (r *Repository) Usage(ctx context.Context, filter UsageFilter) ([]UsageRow, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, usageQuery, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	usage := []UsageRow{}
	for rows.Next() {
		var row UsageRow
		if err := rows.Scan(&row.ItemCode, &row.Description, &row.TotalUsed, &row.TxCount); err != nil {
			return nil, err
		}
		usage = append(usage, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return usage, nil
}

// ImportItems upserts every spreadsheet record in one transaction. The
// spreadsheet is authoritative at import time, so actual_qty is overwritten
// alongside the descriptive fields.
func (r *Repository) ImportItems(ctx context.Context, records []ImportRecord) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, rec := range records {
			if err := tx.UpsertImportRecord(ctx, rec); err != nil {
				return fmt.Errorf("import %s: %w", rec.Code, err)
			}
		}
		return nil
	})
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, code string) (Item, error) {
	var item Item
	err := r.tx.QueryRow(ctx, `SELECT id, item_code, section, description, part_type, min_level, actual_qty, updated_at
FROM inventory_items WHERE item_code=$1 FOR UPDATE`, code).
		Scan(&item.ID, &item.Code, &item.Section, &item.Description, &item.PartType, &item.MinLevel, &item.ActualQty, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, code)
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) UpdateItemQty(ctx context.Context, itemID int64, qty int) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET actual_qty=$1, updated_at=NOW() WHERE id=$2`, qty, itemID)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (item_id, tx_type, qty_change, task_id, slip_id, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		tx.ItemID, string(tx.Type), tx.QtyChange, nullStr(tx.TaskID), nullInt(tx.SlipID), tx.Note, tx.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) NextSlipNo(ctx context.Context) (string, error) {
	var seq int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('slip_no_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("SLP-%06d", seq), nil
}

func (r *txRepository) InsertSlip(ctx context.Context, slip Slip) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO consumption_slips (slip_no, task_id, created_by, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id`, slip.SlipNo, slip.TaskID, slip.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSlipLine(ctx context.Context, line SlipLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO consumption_slip_lines (slip_id, item_code, description, qty_used)
VALUES ($1,$2,$3,$4)`, line.SlipID, line.ItemCode, line.Description, line.QtyUsed)
	return err
}

func (r *txRepository) UpsertImportRecord(ctx context.Context, rec ImportRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (item_code, section, description, part_type, min_level, actual_qty, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (item_code) DO UPDATE SET
  section=EXCLUDED.section,
  description=EXCLUDED.description,
  part_type=EXCLUDED.part_type,
  min_level=EXCLUDED.min_level,
  actual_qty=EXCLUDED.actual_qty,
  updated_at=NOW()`,
		rec.Code, rec.Section, rec.Description, rec.PartType, rec.MinLevel, rec.ActualQty)
	return err
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
