package types

import (
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

type CheckoutRequest struct {
	OrderID           uint64 `json:"-"`
	CheckoutSessionID string `json:"checkout_session_id"`
}

func (r *CheckoutRequest) GetOrderID() uint64 {
	if r == nil {
		return 0
	}
	return r.OrderID
}

func (r *CheckoutRequest) GetCheckoutSessionID() string {
	if r == nil {
		return ""
	}
	return r.CheckoutSessionID
}

func NewCheckoutRequestFromContext(ctx echo.Context) (*CheckoutRequest, error) {
	id, err := parseOrderID(ctx)
	if err != nil {
		return nil, err
	}

	var body CheckoutRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.OrderID = id
	body.CheckoutSessionID = strings.TrimSpace(body.CheckoutSessionID)

	return &body, nil
}

func (r *CheckoutRequest) Validate() error {
	if r.GetOrderID() == 0 {
		return errors.New("invalid order id")
	}
	if r.GetCheckoutSessionID() == "" {
		return errors.New("checkout_session_id is required")
	}
	return nil
}

type RefundOrderRequest struct {
	OrderID uint64 `json:"-"`
	Amount  string `json:"amount"`
	Reason  string `json:"reason"`
}

func (r *RefundOrderRequest) GetOrderID() uint64 {
	if r == nil {
		return 0
	}
	return r.OrderID
}

func (r *RefundOrderRequest) GetAmount() string {
	if r == nil {
		return ""
	}
	return r.Amount
}

func (r *RefundOrderRequest) GetReason() string {
	if r == nil {
		return ""
	}
	return r.Reason
}

func NewRefundOrderRequestFromContext(ctx echo.Context) (*RefundOrderRequest, error) {
	id, err := parseOrderID(ctx)
	if err != nil {
		return nil, err
	}

	var body RefundOrderRequest
	if err = ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.OrderID = id
	body.Amount = strings.TrimSpace(body.Amount)
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *RefundOrderRequest) Validate() error {
	if r.GetOrderID() == 0 {
		return errors.New("invalid order id")
	}
	if !amountPattern.MatchString(r.GetAmount()) {
		return errors.New("amount must be a decimal with at most two fraction digits")
	}
	if amount, _ := strconv.ParseFloat(r.GetAmount(), 64); amount <= 0 {
		return errors.New("amount must be greater than zero")
	}
	if len(r.GetReason()) > 255 {
		return errors.New("reason must be at most 255 characters")
	}
	return nil
}

type ReconcileOrderRequest struct {
	OrderID    uint64 `json:"-"`
	ObjectType string `json:"object_type"`
}

func (r *ReconcileOrderRequest) GetOrderID() uint64 {
	if r == nil {
		return 0
	}
	return r.OrderID
}

func (r *ReconcileOrderRequest) GetObjectType() string {
	if r == nil {
		return ""
	}
	return r.ObjectType
}

func NewReconcileOrderRequestFromContext(ctx echo.Context) (*ReconcileOrderRequest, error) {
	id, err := parseOrderID(ctx)
	if err != nil {
		return nil, err
	}

	var body ReconcileOrderRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.OrderID = id
	body.ObjectType = strings.ToUpper(strings.TrimSpace(body.ObjectType))

	return &body, nil
}

func (r *ReconcileOrderRequest) Validate() error {
	if r.GetOrderID() == 0 {
		return errors.New("invalid order id")
	}
	switch r.GetObjectType() {
	case "CHARGE", "CHARGE_PERMISSION":
		return nil
	default:
		return errors.New("object_type must be CHARGE or CHARGE_PERMISSION")
	}
}

type GetPaymentStateRequest struct {
	OrderID uint64
	Refresh bool
}

func (r *GetPaymentStateRequest) GetOrderID() uint64 {
	if r == nil {
		return 0
	}
	return r.OrderID
}

func (r *GetPaymentStateRequest) GetRefresh() bool {
	if r == nil {
		return false
	}
	return r.Refresh
}

func NewGetPaymentStateRequestFromContext(ctx echo.Context) (*GetPaymentStateRequest, error) {
	id, err := parseOrderID(ctx)
	if err != nil {
		return nil, err
	}

	req := &GetPaymentStateRequest{OrderID: id}
	if raw := strings.TrimSpace(ctx.QueryParam("refresh")); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		req.Refresh = refresh
	}
	return req, nil
}

func (r *GetPaymentStateRequest) Validate() error {
	if r.GetOrderID() == 0 {
		return errors.New("invalid order id")
	}
	return nil
}

func parseOrderID(ctx echo.Context) (uint64, error) {
	return strconv.ParseUint(ctx.Param("id"), 10, 64)
}
