package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderMetaConflict = errors.New("order metadata was modified concurrently")
)

type OrderRepository struct {
	db      TxBeginner
	dialect Dialect
}

func NewOrderRepository(db TxBeginner, dialect Dialect) *OrderRepository {
	return &OrderRepository{db: db, dialect: dialect}
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint64) (*entity.Order, error) {
	query := `
		SELECT id, payment_method, status, total, currency, transaction_id, paid_at,
			stock_reduced, meta_version, created_at, updated_at
		FROM orders
		WHERE id = ?
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	meta, err := r.loadMeta(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	order.Meta = meta
	return order, nil
}

// ReloadMeta refreshes the metadata rows and version of order from the store.
func (r *OrderRepository) ReloadMeta(ctx context.Context, order *entity.Order) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer rollback(tx)

	var version int64
	query := r.dialect.Rebind(`SELECT meta_version FROM orders WHERE id = ?`)
	if err := tx.QueryRowContext(ctx, query, order.ID).Scan(&version); err == sql.ErrNoRows {
		return ErrOrderNotFound
	} else if err != nil {
		return err
	}

	meta, err := r.loadMeta(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	order.MetaVersion = version
	order.Meta = meta
	return nil
}

// ApplyMeta writes ops only if the stored meta version still equals order.MetaVersion.
func (r *OrderRepository) ApplyMeta(ctx context.Context, order *entity.Order, ops []entity.MetaOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	now := time.Now().UTC()
	bump := r.dialect.Rebind(`
		UPDATE orders SET meta_version = meta_version + 1, updated_at = ?
		WHERE id = ? AND meta_version = ?
	`)
	result, err := tx.ExecContext(ctx, bump, now, order.ID, order.MetaVersion)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderMetaConflict
	}

	deleteQuery := r.dialect.Rebind(`DELETE FROM order_meta WHERE order_id = ? AND meta_key = ?`)
	insertQuery := r.dialect.Rebind(`INSERT INTO order_meta (order_id, meta_key, meta_value) VALUES (?, ?, ?)`)
	for _, op := range ops {
		switch op.Kind {
		case entity.MetaOpSet:
			if _, err := tx.ExecContext(ctx, deleteQuery, order.ID, op.Key); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, insertQuery, order.ID, op.Key, op.Value); err != nil {
				return err
			}
		case entity.MetaOpDelete:
			if _, err := tx.ExecContext(ctx, deleteQuery, order.ID, op.Key); err != nil {
				return err
			}
		case entity.MetaOpAdd:
			if _, err := tx.ExecContext(ctx, insertQuery, order.ID, op.Key, op.Value); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.Meta = entity.ApplyMetaOps(order.Meta, ops)
	order.MetaVersion++
	order.UpdatedAt = now
	return nil
}

// UpdateStatus reports whether the status changed.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order *entity.Order, status string) (bool, error) {
	now := time.Now().UTC()
	query := r.dialect.Rebind(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`)
	result, err := r.db.ExecContext(ctx, query, status, now, order.ID, status)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	order.Status = status
	if affected > 0 {
		order.UpdatedAt = now
	}
	return affected > 0, nil
}

// MarkPaid sets the paid timestamp once; later calls are no-ops.
func (r *OrderRepository) MarkPaid(ctx context.Context, order *entity.Order, status, transactionID string) (bool, error) {
	now := time.Now().UTC()
	query := r.dialect.Rebind(`
		UPDATE orders SET paid_at = ?, status = ?, transaction_id = ?, updated_at = ?
		WHERE id = ? AND paid_at IS NULL
	`)
	result, err := r.db.ExecContext(ctx, query, now, status, transactionID, now, order.ID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	order.PaidAt = &now
	order.Status = status
	order.TransactionID = &transactionID
	order.UpdatedAt = now
	return true, nil
}

func (r *OrderRepository) loadMeta(ctx context.Context, db DBTX, orderID uint64) ([]entity.OrderMeta, error) {
	query := r.dialect.Rebind(`SELECT meta_key, meta_value FROM order_meta WHERE order_id = ? ORDER BY id ASC`)
	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make([]entity.OrderMeta, 0)
	for rows.Next() {
		var m entity.OrderMeta
		if err := rows.Scan(&m.Key, &m.Value); err != nil {
			return nil, err
		}
		meta = append(meta, m)
	}
	return meta, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var transactionID sql.NullString
	var paidAt sql.NullTime

	err := scan.Scan(
		&order.ID,
		&order.PaymentMethod,
		&order.Status,
		&order.Total,
		&order.Currency,
		&transactionID,
		&paidAt,
		&order.StockReduced,
		&order.MetaVersion,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	order.TransactionID = stringPtrFromNull(transactionID)
	order.PaidAt = timePtrFromNull(paidAt)
	return nil
}
