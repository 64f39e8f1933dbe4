package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
)

type checkoutInput struct {
	orderID   uint64
	sessionID string
}

func (c checkoutInput) GetOrderID() uint64           { return c.orderID }
func (c checkoutInput) GetCheckoutSessionID() string { return c.sessionID }

func TestPrepareCheckoutUpdatesSessionWhenAmountDiffers(t *testing.T) {
	f := newServiceFixture(nil)
	f.svc.cfg.PaymentCapture = captureAuthorize
	f.svc.cfg.AuthorizationMode = authorizationAsync
	f.addOrder(42)
	f.api.sessions["S1"] = &amazonpay.CheckoutSession{
		CheckoutSessionID:  "S1",
		WebCheckoutDetails: amazonpay.WebCheckoutDetails{AmazonPayRedirectURL: "https://pay.example/redirect"},
	}

	redirect, err := f.svc.PrepareCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if redirect != "https://pay.example/redirect" {
		t.Fatalf("unexpected redirect %q", redirect)
	}
	if len(f.api.updates) != 1 {
		t.Fatalf("expected one session update, got %d", len(f.api.updates))
	}
	update := f.api.updates[0]
	if update.PaymentDetails.PaymentIntent != amazonpay.PaymentIntentAuthorize || !update.PaymentDetails.CanHandlePendingAuthorization {
		t.Fatalf("unexpected payment details %+v", update.PaymentDetails)
	}
	if update.PaymentDetails.ChargeAmount.Amount != "10.00" || update.MerchantMetadata.MerchantReferenceID != "42" {
		t.Fatalf("unexpected update payload %+v %+v", update.PaymentDetails.ChargeAmount, update.MerchantMetadata)
	}
	if got := f.store.get(42).GetMeta(entity.MetaCheckoutSessionID); got != "S1" {
		t.Fatalf("expected checkout session id cached, got %q", got)
	}
}

func TestPrepareCheckoutSkipsUpdateWhenAmountMatches(t *testing.T) {
	f := newServiceFixture(nil)
	f.addOrder(42)
	f.api.sessions["S1"] = &amazonpay.CheckoutSession{
		CheckoutSessionID: "S1",
		PaymentDetails:    amazonpay.PaymentDetails{ChargeAmount: &amazonpay.Price{Amount: "10.00", CurrencyCode: "USD"}},
		Constraints:       []amazonpay.Constraint{{ConstraintID: "BuyerConsentNotSet"}},
	}

	_, err := f.svc.PrepareCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"})
	if !errors.Is(err, ErrCheckoutConstraints) {
		t.Fatalf("expected constraints error, got %v", err)
	}
	if len(f.api.updates) != 0 {
		t.Fatalf("expected no session update, got %d", len(f.api.updates))
	}
}

func TestPaymentIntentFromCaptureMode(t *testing.T) {
	f := newServiceFixture(nil)
	cases := map[string]string{
		"":               amazonpay.PaymentIntentAuthorizeWithCapture,
		captureAuthorize: amazonpay.PaymentIntentAuthorize,
		captureManual:    amazonpay.PaymentIntentConfirm,
		"something-else": amazonpay.PaymentIntentAuthorizeWithCapture,
	}
	for mode, want := range cases {
		f.svc.cfg.PaymentCapture = mode
		if got := f.svc.paymentIntent(); got != want {
			t.Fatalf("capture %q: expected %s, got %s", mode, want, got)
		}
	}
}

func TestCompleteCheckoutWithChargeReconcilesBoth(t *testing.T) {
	f := newServiceFixture(nil)
	f.addOrder(42)
	f.api.sessions["S1"] = &amazonpay.CheckoutSession{
		CheckoutSessionID:  "S1",
		StatusDetails:      amazonpay.StatusDetails{State: amazonpay.CheckoutSessionCompleted},
		ChargePermissionID: "CP1",
		ChargeID:           "C1",
	}
	f.api.setChargePermission("CP1", "42", amazonpay.ChargePermissionChargeable)
	f.api.setCharge("C1", "42", amazonpay.ChargeAuthorized)

	order, err := f.svc.CompleteCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if order.Status != entity.OrderStatusOnHold {
		t.Fatalf("expected on-hold, got %s", order.Status)
	}
	stored := f.store.get(42)
	if cachedStatus(stored, entity.MetaChargePermissionStatus) != amazonpay.ChargePermissionChargeable ||
		cachedStatus(stored, entity.MetaChargeStatus) != amazonpay.ChargeAuthorized {
		t.Fatalf("expected both statuses cached, meta=%+v", stored.Meta)
	}
	if f.pending(42, ipn.ObjectCharge) != 1 || f.pending(42, ipn.ObjectChargePermission) != 1 {
		t.Fatal("expected both poll jobs scheduled")
	}
}

func TestCompleteCheckoutWithoutChargePutsOrderOnHold(t *testing.T) {
	f := newServiceFixture(nil)
	f.addOrder(42)
	f.api.sessions["S1"] = &amazonpay.CheckoutSession{
		CheckoutSessionID:  "S1",
		StatusDetails:      amazonpay.StatusDetails{State: amazonpay.CheckoutSessionCompleted},
		ChargePermissionID: "CP1",
	}
	f.api.setChargePermission("CP1", "42", amazonpay.ChargePermissionChargeable)

	if _, err := f.svc.CompleteCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	stored := f.store.get(42)
	if stored.Status != entity.OrderStatusOnHold || !stored.StockReduced {
		t.Fatalf("expected on-hold order with stock reduced, got status=%s reduced=%v", stored.Status, stored.StockReduced)
	}
	if stored.GetMeta(entity.MetaChargeID) != "" {
		t.Fatalf("expected no charge id, got %q", stored.GetMeta(entity.MetaChargeID))
	}
}

func TestCompleteCheckoutCanceledSession(t *testing.T) {
	cases := map[string]error{
		amazonpay.ReasonDeclined:      ErrCheckoutDeclined,
		amazonpay.ReasonBuyerCanceled: ErrCheckoutCanceled,
		"Expired":                     ErrCheckoutFailed,
	}
	for reason, want := range cases {
		f := newServiceFixture(nil)
		f.addOrder(42)
		f.api.completeErr = &amazonpay.APIError{Operation: "completeCheckoutSession", StatusCode: 422, ReasonCode: amazonpay.ReasonCheckoutSessionCanceled}
		f.api.sessions["S1"] = &amazonpay.CheckoutSession{
			CheckoutSessionID: "S1",
			StatusDetails:     amazonpay.StatusDetails{State: amazonpay.CheckoutSessionCanceled, ReasonCode: reason},
		}

		_, err := f.svc.CompleteCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"})
		if !errors.Is(err, want) {
			t.Fatalf("reason %s: expected %v, got %v", reason, want, err)
		}
	}
}

func TestCompleteCheckoutRejectsIncompleteSession(t *testing.T) {
	f := newServiceFixture(nil)
	f.addOrder(42)
	f.api.sessions["S1"] = &amazonpay.CheckoutSession{
		CheckoutSessionID: "S1",
		StatusDetails:     amazonpay.StatusDetails{State: amazonpay.CheckoutSessionOpen},
	}

	_, err := f.svc.CompleteCheckout(context.Background(), checkoutInput{orderID: 42, sessionID: "S1"})
	if !errors.Is(err, ErrCheckoutFailed) {
		t.Fatalf("expected ErrCheckoutFailed, got %v", err)
	}
	if len(f.store.get(42).Meta) != 0 {
		t.Fatal("expected no metadata written")
	}
}
