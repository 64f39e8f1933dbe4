package entity

import "time"

type OrderRefund struct {
	ID      uint64
	OrderID uint64

	Amount string
	Reason string

	AmazonRefundID  *string
	RefundedPayment bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
