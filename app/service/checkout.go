package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
)

const (
	captureAuthorize   = "authorize"
	captureManual      = "manual"
	authorizationAsync = "async"
)

type checkoutRequest interface {
	GetOrderID() uint64
	GetCheckoutSessionID() string
}

// PrepareCheckout aligns the checkout session with the order and returns the redirect URL
// the buyer must follow to confirm the payment.
func (s *GatewayService) PrepareCheckout(ctx context.Context, req checkoutRequest) (string, error) {
	sessionID := strings.TrimSpace(req.GetCheckoutSessionID())
	if req.GetOrderID() == 0 || sessionID == "" {
		return "", ErrInvalidRequest
	}

	order, err := s.loadGatewayOrder(ctx, req.GetOrderID())
	if err != nil {
		return "", err
	}

	session, err := s.api.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"order_id":            order.ID,
		"checkout_session_id": sessionID,
	})

	details := session.PaymentDetails
	if details.ChargeAmount == nil || details.ChargeAmount.Amount != order.Total {
		intent := s.paymentIntent()
		payload := &amazonpay.UpdateCheckoutSessionRequest{
			PaymentDetails: &amazonpay.PaymentDetails{
				PaymentIntent:                 intent,
				CanHandlePendingAuthorization: s.cfg.AuthorizationMode == authorizationAsync && s.cfg.PaymentCapture == captureAuthorize,
				ChargeAmount:                  &amazonpay.Price{Amount: order.Total, CurrencyCode: order.Currency},
			},
			MerchantMetadata: &amazonpay.MerchantMetadata{
				MerchantReferenceID: strconv.FormatUint(order.ID, 10),
				MerchantStoreName:   s.cfg.MerchantStoreName,
			},
		}
		logger.WithField("payment_intent", intent).Info("Updating checkout session")
		session, err = s.api.UpdateCheckoutSession(ctx, sessionID, payload)
		if err != nil {
			return "", err
		}
	}

	if len(session.Constraints) > 0 {
		ids := make([]string, 0, len(session.Constraints))
		for _, constraint := range session.Constraints {
			ids = append(ids, constraint.ConstraintID)
		}
		logger.WithField("constraints", ids).Warn("Checkout session has constraints")
		return "", fmt.Errorf("%w: %s", ErrCheckoutConstraints, strings.Join(ids, ", "))
	}

	err = s.writeMeta(ctx, order, func(current *entity.Order) []entity.MetaOp {
		if current.GetMeta(entity.MetaCheckoutSessionID) == sessionID {
			return nil
		}
		return []entity.MetaOp{entity.SetMeta(entity.MetaCheckoutSessionID, sessionID)}
	})
	if err != nil {
		return "", err
	}

	return session.WebCheckoutDetails.AmazonPayRedirectURL, nil
}

func (s *GatewayService) paymentIntent() string {
	switch s.cfg.PaymentCapture {
	case captureAuthorize:
		return amazonpay.PaymentIntentAuthorize
	case captureManual:
		return amazonpay.PaymentIntentConfirm
	default:
		return amazonpay.PaymentIntentAuthorizeWithCapture
	}
}

// CompleteCheckout finalizes the checkout session for the order total once the buyer returns,
// then reconciles the resulting charge permission and charge.
func (s *GatewayService) CompleteCheckout(ctx context.Context, req checkoutRequest) (*entity.Order, error) {
	sessionID := strings.TrimSpace(req.GetCheckoutSessionID())
	if req.GetOrderID() == 0 || sessionID == "" {
		return nil, ErrInvalidRequest
	}

	order, err := s.loadGatewayOrder(ctx, req.GetOrderID())
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(logrus.Fields{
		"order_id":            order.ID,
		"checkout_session_id": sessionID,
	})

	session, err := s.api.CompleteCheckoutSession(ctx, sessionID, &amazonpay.CompleteCheckoutSessionRequest{
		ChargeAmount: amazonpay.Price{Amount: order.Total, CurrencyCode: order.Currency},
	})
	if err != nil {
		if !amazonpay.HasReasonCode(err, amazonpay.ReasonCheckoutSessionCanceled) {
			return nil, err
		}
		canceled, getErr := s.api.GetCheckoutSession(ctx, sessionID)
		if getErr != nil {
			return nil, getErr
		}
		switch canceled.StatusDetails.ReasonCode {
		case amazonpay.ReasonDeclined:
			return nil, ErrCheckoutDeclined
		case amazonpay.ReasonBuyerCanceled:
			return nil, ErrCheckoutCanceled
		default:
			logger.WithField("reason_code", canceled.StatusDetails.ReasonCode).Error("Checkout session canceled")
			return nil, fmt.Errorf("%w: %s", ErrCheckoutFailed, canceled.StatusDetails.ReasonCode)
		}
	}

	if session.StatusDetails.State != amazonpay.CheckoutSessionCompleted {
		return nil, fmt.Errorf("%w: session is %s", ErrCheckoutFailed, session.StatusDetails.State)
	}

	err = s.writeMeta(ctx, order, func(*entity.Order) []entity.MetaOp {
		return []entity.MetaOp{
			entity.SetMeta(entity.MetaCheckoutSessionID, sessionID),
			entity.SetMeta(entity.MetaChargePermissionID, session.ChargePermissionID),
		}
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.ApplyChargePermissionUpdate(ctx, order, nil); err != nil {
		return nil, err
	}

	if session.ChargeID != "" {
		err = s.writeMeta(ctx, order, func(*entity.Order) []entity.MetaOp {
			return []entity.MetaOp{entity.SetMeta(entity.MetaChargeID, session.ChargeID)}
		})
		if err != nil {
			return nil, err
		}
		if _, err := s.ApplyChargeUpdate(ctx, order, nil); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.orders.UpdateStatus(ctx, order, entity.OrderStatusOnHold); err != nil {
			return nil, err
		}
		if _, err := s.stock.Reduce(ctx, order); err != nil {
			return nil, err
		}
	}

	logger.Info("Checkout completed")
	return order, nil
}
