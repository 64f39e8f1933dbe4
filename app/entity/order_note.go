package entity

import "time"

const (
	StockAdjustmentReduce  = "reduce"
	StockAdjustmentRestore = "restore"
)

type OrderNote struct {
	ID        uint64
	OrderID   uint64
	Note      string
	CreatedAt time.Time
}

type StockAdjustment struct {
	ID        uint64
	OrderID   uint64
	Kind      string
	CreatedAt time.Time
}
