package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn/ipntest"
	"github.com/vibast-solutions/ms-go-amazonpay/app/queue"
	"github.com/vibast-solutions/ms-go-amazonpay/app/service"
	"github.com/vibast-solutions/ms-go-amazonpay/app/types"
)

type controllerOrderRepo struct {
	mu     sync.Mutex
	orders map[uint64]*entity.Order
}

func (r *controllerOrderRepo) FindByID(_ context.Context, id uint64) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copyItem := *order
	copyItem.Meta = append([]entity.OrderMeta(nil), order.Meta...)
	return &copyItem, nil
}

func (r *controllerOrderRepo) ReloadMeta(_ context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.orders[order.ID]
	order.Meta = append([]entity.OrderMeta(nil), stored.Meta...)
	order.MetaVersion = stored.MetaVersion
	return nil
}

func (r *controllerOrderRepo) ApplyMeta(_ context.Context, order *entity.Order, ops []entity.MetaOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.orders[order.ID]
	stored.Meta = entity.ApplyMetaOps(stored.Meta, ops)
	stored.MetaVersion++
	order.Meta = entity.ApplyMetaOps(order.Meta, ops)
	order.MetaVersion = stored.MetaVersion
	return nil
}

func (r *controllerOrderRepo) UpdateStatus(_ context.Context, order *entity.Order, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.orders[order.ID]
	order.Status = status
	if stored.Status == status {
		return false, nil
	}
	stored.Status = status
	return true, nil
}

func (r *controllerOrderRepo) MarkPaid(_ context.Context, order *entity.Order, status, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.orders[order.ID]
	if stored.PaidAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	stored.PaidAt, stored.Status, stored.TransactionID = &now, status, &transactionID
	order.PaidAt, order.Status, order.TransactionID = &now, status, &transactionID
	return true, nil
}

func (r *controllerOrderRepo) get(id uint64) entity.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

type controllerRefundRepo struct{}

func (controllerRefundRepo) Create(context.Context, *entity.OrderRefund) error { return nil }
func (controllerRefundRepo) Update(context.Context, *entity.OrderRefund) error { return nil }
func (controllerRefundRepo) Delete(context.Context, uint64) error              { return nil }
func (controllerRefundRepo) FindByID(context.Context, uint64) (*entity.OrderRefund, error) {
	return nil, nil
}
func (controllerRefundRepo) ListByOrder(context.Context, uint64) ([]*entity.OrderRefund, error) {
	return []*entity.OrderRefund{}, nil
}

type controllerNoteRepo struct{}

func (controllerNoteRepo) Create(context.Context, *entity.OrderNote) error { return nil }

type controllerMessageRepo struct{}

func (controllerMessageRepo) Create(context.Context, *entity.IPNMessage) error { return nil }

type controllerStockRepo struct {
	repo *controllerOrderRepo
}

func (s controllerStockRepo) Reduce(_ context.Context, order *entity.Order) (bool, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	stored := s.repo.orders[order.ID]
	changed := !stored.StockReduced
	stored.StockReduced, order.StockReduced = true, true
	return changed, nil
}

func (s controllerStockRepo) Restore(_ context.Context, order *entity.Order) (bool, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	stored := s.repo.orders[order.ID]
	changed := stored.StockReduced
	stored.StockReduced, order.StockReduced = false, false
	return changed, nil
}

type controllerAPI struct {
	charges map[string]*amazonpay.Charge
	err     error
	calls   int
}

func (a *controllerAPI) GetCharge(_ context.Context, chargeID string) (*amazonpay.Charge, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	charge, ok := a.charges[chargeID]
	if !ok {
		return nil, &amazonpay.APIError{Operation: "getCharge", StatusCode: 404, ReasonCode: "ResourceNotFound"}
	}
	copyItem := *charge
	return &copyItem, nil
}

func (a *controllerAPI) GetChargePermission(context.Context, string) (*amazonpay.ChargePermission, error) {
	a.calls++
	return nil, errors.New("not configured")
}

func (a *controllerAPI) GetRefund(context.Context, string) (*amazonpay.Refund, error) {
	a.calls++
	return nil, errors.New("not configured")
}

func (a *controllerAPI) RefundCharge(context.Context, string, amazonpay.Price) (*amazonpay.Refund, error) {
	a.calls++
	return nil, errors.New("not configured")
}

func (a *controllerAPI) GetCheckoutSession(context.Context, string) (*amazonpay.CheckoutSession, error) {
	a.calls++
	return nil, errors.New("not configured")
}

func (a *controllerAPI) UpdateCheckoutSession(context.Context, string, *amazonpay.UpdateCheckoutSessionRequest) (*amazonpay.CheckoutSession, error) {
	a.calls++
	return nil, errors.New("not configured")
}

func (a *controllerAPI) CompleteCheckoutSession(context.Context, string, *amazonpay.CompleteCheckoutSessionRequest) (*amazonpay.CheckoutSession, error) {
	a.calls++
	return nil, errors.New("not configured")
}

type controllerFixture struct {
	orders  *controllerOrderRepo
	api     *controllerAPI
	fetcher *ipntest.Fetcher
	signer  *ipntest.Signer
	queue   *queue.MemoryQueue
	svc     *service.GatewayService
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	signer := ipntest.NewSigner(t)
	fetcher := ipntest.NewFetcher(signer.CertPEM)
	orders := &controllerOrderRepo{orders: map[uint64]*entity.Order{
		42: {ID: 42, PaymentMethod: "amazon_payments_advanced", Status: entity.OrderStatusPending, Total: "10.00", Currency: "USD"},
	}}
	api := &controllerAPI{charges: map[string]*amazonpay.Charge{
		"C1": {
			ChargeID:         "C1",
			StatusDetails:    amazonpay.StatusDetails{State: amazonpay.ChargeAuthorized},
			MerchantMetadata: amazonpay.MerchantMetadata{MerchantReferenceID: "42"},
		},
	}}
	q := queue.NewMemoryQueue()
	svc := service.NewGatewayService(
		api,
		orders,
		controllerRefundRepo{},
		controllerNoteRepo{},
		controllerStockRepo{repo: orders},
		controllerMessageRepo{},
		ipn.NewValidator(ipn.NewVerifier(fetcher)),
		service.NewPollScheduler(q, time.Minute),
		service.Config{},
	)
	return &controllerFixture{orders: orders, api: api, fetcher: fetcher, signer: signer, queue: q, svc: svc}
}

func postIPN(t *testing.T, handler echo.HandlerFunc, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/amazon-pay/ipn", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestIPNControllerAcceptsSignedNotification(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewIPNController(f.svc)

	body := ipntest.Body(t, f.signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1")))
	rec := postIPN(t, ctrl.HandleNotification, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	if got := f.orders.get(42); got.Status != entity.OrderStatusOnHold {
		t.Fatalf("expected on-hold order, got %s", got.Status)
	}
}

func TestIPNControllerRejectsForeignCertificateURL(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewIPNController(f.svc)

	fields := f.signer.Envelope(t, ipntest.StateChange("CHARGE", "C1", "CP1"))
	fields["SigningCertURL"] = "http://evil.example.com/cert.pem"
	rec := postIPN(t, ctrl.HandleNotification, ipntest.Body(t, fields))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), ipn.ErrInvalidCertificateURL.Error()+": ") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := f.orders.get(42); got.Status != entity.OrderStatusPending || len(got.Meta) != 0 {
		t.Fatalf("expected order untouched, got %+v", got)
	}
	if f.fetcher.Calls() != 0 || f.api.calls != 0 {
		t.Fatalf("expected no outbound calls, fetches=%d api=%d", f.fetcher.Calls(), f.api.calls)
	}
}

func TestIPNControllerRejectsMalformedBody(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewIPNController(f.svc)

	rec := postIPN(t, ctrl.HandleNotification, []byte("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), ipn.ErrMalformedPayload.Error()) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func callOrderEndpoint(t *testing.T, handler echo.HandlerFunc, method, target, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)
	if err := handler(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestOrderControllerGetPaymentState(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewOrderController(f.svc)

	rec := callOrderEndpoint(t, ctrl.GetPaymentState, http.MethodGet, "/orders/42/payment", "42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.PaymentStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State == nil || resp.State.Order.ID != 42 {
		t.Fatalf("unexpected state %+v", resp.State)
	}

	rec = callOrderEndpoint(t, ctrl.GetPaymentState, http.MethodGet, "/orders/99/payment", "99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = callOrderEndpoint(t, ctrl.GetPaymentState, http.MethodGet, "/orders/x/payment", "x", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrderControllerRefundWithoutCharge(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewOrderController(f.svc)

	rec := callOrderEndpoint(t, ctrl.RefundOrder, http.MethodPost, "/orders/42/refunds", "42", `{"amount":"1.00"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != service.ErrNoCharge.Error() {
		t.Fatalf("unexpected error %q", msg)
	}

	rec = callOrderEndpoint(t, ctrl.RefundOrder, http.MethodPost, "/orders/42/refunds", "42", `{"amount":"0"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}
}

func TestOrderControllerReconcileMapsUpstreamFailure(t *testing.T) {
	f := newControllerFixture(t)
	f.orders.orders[42].Meta = []entity.OrderMeta{{Key: entity.MetaChargeID, Value: "C-missing"}}
	ctrl := NewOrderController(f.svc)

	rec := callOrderEndpoint(t, ctrl.ReconcileOrder, http.MethodPost, "/orders/42/reconcile", "42", `{"object_type":"charge"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}

	f.orders.orders[42].Meta = []entity.OrderMeta{{Key: entity.MetaChargeID, Value: "C1"}}
	rec = callOrderEndpoint(t, ctrl.ReconcileOrder, http.MethodPost, "/orders/42/reconcile", "42", `{"object_type":"CHARGE"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.OrderEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order == nil || resp.Order.Status != entity.OrderStatusOnHold {
		t.Fatalf("unexpected order %+v", resp.Order)
	}
}

func TestOrderControllerHealth(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := NewOrderController(f.svc)

	rec := callOrderEndpoint(t, ctrl.Health, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
