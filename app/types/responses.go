package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusReason struct {
	ReasonCode        string `json:"reason_code"`
	ReasonDescription string `json:"reason_description"`
}

type StatusSnapshot struct {
	Status  string          `json:"status"`
	Reasons []*StatusReason `json:"reasons"`
}

type Order struct {
	ID            uint64 `json:"id"`
	PaymentMethod string `json:"payment_method"`
	Status        string `json:"status"`
	Total         string `json:"total"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
	StockReduced  bool   `json:"stock_reduced"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type Refund struct {
	ID              uint64 `json:"id"`
	OrderID         uint64 `json:"order_id"`
	Amount          string `json:"amount"`
	Reason          string `json:"reason,omitempty"`
	AmazonRefundID  string `json:"amazon_refund_id,omitempty"`
	RefundedPayment bool   `json:"refunded_payment"`
	CreatedAt       string `json:"created_at"`
}

type PollJob struct {
	ObjectType string `json:"object_type"`
	RunAt      string `json:"run_at"`
}

type PaymentState struct {
	Order                  *Order          `json:"order"`
	CheckoutSessionID      string          `json:"checkout_session_id,omitempty"`
	ChargeID               string          `json:"charge_id,omitempty"`
	ChargePermissionID     string          `json:"charge_permission_id,omitempty"`
	ChargeStatus           *StatusSnapshot `json:"charge_status,omitempty"`
	ChargePermissionStatus *StatusSnapshot `json:"charge_permission_status,omitempty"`
	RefundIDs              []string        `json:"refund_ids"`
	Refunds                []*Refund       `json:"refunds"`
	PendingPolls           []*PollJob      `json:"pending_polls"`
}

type OrderEnvelopeResponse struct {
	Order *Order `json:"order"`
}

type RefundEnvelopeResponse struct {
	Refund *Refund `json:"refund"`
}

type PaymentStateResponse struct {
	State *PaymentState `json:"state"`
}

type RedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}
