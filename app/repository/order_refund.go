package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
)

var ErrRefundAlreadyExists = errors.New("refund already recorded")

type OrderRefundRepository struct {
	db      DBTX
	dialect Dialect
}

func NewOrderRefundRepository(db DBTX, dialect Dialect) *OrderRefundRepository {
	return &OrderRefundRepository{db: db, dialect: dialect}
}

func (r *OrderRefundRepository) Create(ctx context.Context, refund *entity.OrderRefund) error {
	query := `
		INSERT INTO order_refunds (
			order_id, amount, reason, amazon_refund_id, refunded_payment, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	id, err := insertID(ctx, r.db, r.dialect, query,
		refund.OrderID,
		refund.Amount,
		refund.Reason,
		nullableStringValue(refund.AmazonRefundID),
		refund.RefundedPayment,
		refund.CreatedAt,
		refund.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrRefundAlreadyExists
		}
		return err
	}
	refund.ID = id
	return nil
}

func (r *OrderRefundRepository) Update(ctx context.Context, refund *entity.OrderRefund) error {
	query := r.dialect.Rebind(`
		UPDATE order_refunds SET
			amount = ?,
			reason = ?,
			amazon_refund_id = ?,
			refunded_payment = ?,
			updated_at = ?
		WHERE id = ?
	`)
	_, err := r.db.ExecContext(ctx, query,
		refund.Amount,
		refund.Reason,
		nullableStringValue(refund.AmazonRefundID),
		refund.RefundedPayment,
		refund.UpdatedAt,
		refund.ID,
	)
	if err != nil && isDuplicateEntryError(err) {
		return ErrRefundAlreadyExists
	}
	return err
}

func (r *OrderRefundRepository) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM order_refunds WHERE id = ?`), id)
	return err
}

func (r *OrderRefundRepository) FindByID(ctx context.Context, id uint64) (*entity.OrderRefund, error) {
	query := r.dialect.Rebind(`
		SELECT id, order_id, amount, reason, amazon_refund_id, refunded_payment, created_at, updated_at
		FROM order_refunds
		WHERE id = ?
	`)

	refund := &entity.OrderRefund{}
	if err := scanOrderRefund(r.db.QueryRowContext(ctx, query, id), refund); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *OrderRefundRepository) ListByOrder(ctx context.Context, orderID uint64) ([]*entity.OrderRefund, error) {
	query := r.dialect.Rebind(`
		SELECT id, order_id, amount, reason, amazon_refund_id, refunded_payment, created_at, updated_at
		FROM order_refunds
		WHERE order_id = ?
		ORDER BY id ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.OrderRefund, 0)
	for rows.Next() {
		item := &entity.OrderRefund{}
		if err := scanOrderRefund(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrderRefund(scan rowScanner, refund *entity.OrderRefund) error {
	var amazonRefundID sql.NullString
	err := scan.Scan(
		&refund.ID,
		&refund.OrderID,
		&refund.Amount,
		&refund.Reason,
		&amazonRefundID,
		&refund.RefundedPayment,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
	if err != nil {
		return err
	}
	refund.AmazonRefundID = stringPtrFromNull(amazonRefundID)
	return nil
}

type OrderNoteRepository struct {
	db      DBTX
	dialect Dialect
}

func NewOrderNoteRepository(db DBTX, dialect Dialect) *OrderNoteRepository {
	return &OrderNoteRepository{db: db, dialect: dialect}
}

func (r *OrderNoteRepository) Create(ctx context.Context, note *entity.OrderNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	id, err := insertID(ctx, r.db, r.dialect,
		`INSERT INTO order_notes (order_id, note, created_at) VALUES (?, ?, ?)`,
		note.OrderID, note.Note, note.CreatedAt,
	)
	if err != nil {
		return err
	}
	note.ID = id
	return nil
}
