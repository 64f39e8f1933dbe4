package entity

import "time"

const (
	OrderStatusPending    = "pending"
	OrderStatusOnHold     = "on-hold"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

const (
	MetaChargeID               = "amazon_charge_id"
	MetaChargePermissionID     = "amazon_charge_permission_id"
	MetaChargeStatus           = "amazon_charge_status"
	MetaChargePermissionStatus = "amazon_charge_permission_status"
	MetaRefundID               = "amazon_refund_id"
	MetaCheckoutSessionID      = "amazon_checkout_session_id"
)

type Order struct {
	ID uint64

	PaymentMethod string
	Status        string

	// Total is a decimal string in the order currency, e.g. "10.00".
	Total    string
	Currency string

	TransactionID *string
	PaidAt        *time.Time
	StockReduced  bool

	// MetaVersion is bumped on every metadata write.
	MetaVersion int64
	Meta        []OrderMeta

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderMeta struct {
	Key   string
	Value string
}

func (o *Order) GetMeta(key string) string {
	for _, m := range o.Meta {
		if m.Key == key {
			return m.Value
		}
	}
	return ""
}

func (o *Order) GetMetaValues(key string) []string {
	values := make([]string, 0)
	for _, m := range o.Meta {
		if m.Key == key {
			values = append(values, m.Value)
		}
	}
	return values
}

func (o *Order) IsPaid() bool {
	return o.PaidAt != nil
}

type MetaOpKind int

const (
	MetaOpSet MetaOpKind = iota + 1
	MetaOpDelete
	MetaOpAdd
)

// MetaOp is one metadata mutation. Set replaces every row for Key, Add appends a row.
type MetaOp struct {
	Kind  MetaOpKind
	Key   string
	Value string
}

func SetMeta(key, value string) MetaOp {
	return MetaOp{Kind: MetaOpSet, Key: key, Value: value}
}

func DeleteMeta(key string) MetaOp {
	return MetaOp{Kind: MetaOpDelete, Key: key}
}

func AddMeta(key, value string) MetaOp {
	return MetaOp{Kind: MetaOpAdd, Key: key, Value: value}
}

// ApplyMetaOps returns meta with ops applied in order.
func ApplyMetaOps(meta []OrderMeta, ops []MetaOp) []OrderMeta {
	out := append([]OrderMeta(nil), meta...)
	for _, op := range ops {
		switch op.Kind {
		case MetaOpSet:
			out = withoutKey(out, op.Key)
			out = append(out, OrderMeta{Key: op.Key, Value: op.Value})
		case MetaOpDelete:
			out = withoutKey(out, op.Key)
		case MetaOpAdd:
			out = append(out, OrderMeta{Key: op.Key, Value: op.Value})
		}
	}
	return out
}

func withoutKey(meta []OrderMeta, key string) []OrderMeta {
	out := meta[:0:0]
	for _, m := range meta {
		if m.Key != key {
			out = append(out, m)
		}
	}
	return out
}
