package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
)

// StockRepository flips the order's stock_reduced flag and records a ledger row for the
// commerce engine. Each direction is a no-op when the flag already has the target value.
type StockRepository struct {
	db      TxBeginner
	dialect Dialect
}

func NewStockRepository(db TxBeginner, dialect Dialect) *StockRepository {
	return &StockRepository{db: db, dialect: dialect}
}

func (r *StockRepository) Reduce(ctx context.Context, order *entity.Order) (bool, error) {
	changed, err := r.adjust(ctx, order.ID, true, entity.StockAdjustmentReduce)
	if err == nil {
		order.StockReduced = true
	}
	return changed, err
}

func (r *StockRepository) Restore(ctx context.Context, order *entity.Order) (bool, error) {
	changed, err := r.adjust(ctx, order.ID, false, entity.StockAdjustmentRestore)
	if err == nil {
		order.StockReduced = false
	}
	return changed, err
}

func (r *StockRepository) adjust(ctx context.Context, orderID uint64, reduced bool, kind string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	query := r.dialect.Rebind(`UPDATE orders SET stock_reduced = ? WHERE id = ? AND stock_reduced = ?`)
	result, err := tx.ExecContext(ctx, query, reduced, orderID, !reduced)
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

	adjustment := &entity.StockAdjustment{OrderID: orderID, Kind: kind, CreatedAt: time.Now().UTC()}
	adjustment.ID, err = insertID(ctx, tx, r.dialect,
		`INSERT INTO stock_adjustments (order_id, kind, created_at) VALUES (?, ?, ?)`,
		adjustment.OrderID, adjustment.Kind, adjustment.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

type IPNMessageRepository struct {
	db      DBTX
	dialect Dialect
}

func NewIPNMessageRepository(db DBTX, dialect Dialect) *IPNMessageRepository {
	return &IPNMessageRepository{db: db, dialect: dialect}
}

func (r *IPNMessageRepository) Create(ctx context.Context, message *entity.IPNMessage) error {
	query := `
		INSERT INTO ipn_messages (
			order_id, message_id, object_type, object_id, status, error_class, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	id, err := insertID(ctx, r.db, r.dialect, query,
		nullableUint64Value(message.OrderID),
		message.MessageID,
		message.ObjectType,
		message.ObjectID,
		message.Status,
		nullableStringValue(message.ErrorClass),
		nullableStringValue(message.Error),
		message.CreatedAt,
	)
	if err != nil {
		return err
	}
	message.ID = id
	return nil
}
