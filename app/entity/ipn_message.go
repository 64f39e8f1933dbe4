package entity

import "time"

const (
	IPNMessageProcessed int32 = 10
	IPNMessageIgnored   int32 = 15
	IPNMessageRejected  int32 = 20
)

// IPNMessage is the delivery ledger row for one inbound push.
type IPNMessage struct {
	ID uint64

	OrderID *uint64

	MessageID  string
	ObjectType string
	ObjectID   string
	ErrorClass *string
	Error      *string
	Status     int32

	CreatedAt time.Time
}
