package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
)

const maxLedgerErrorLength = 1024

// HandleNotification validates one raw webhook delivery and routes it. Every delivery is
// recorded in the IPN ledger as processed, ignored or rejected.
func (s *GatewayService) HandleNotification(ctx context.Context, raw []byte) error {
	metrics.IPNReceivedTotal.Inc()

	n, err := s.validator.Validate(ctx, raw)
	if err != nil {
		s.reject(ctx, nil, nil, err)
		return err
	}

	orderID, handled, err := s.route(ctx, n)
	if err != nil {
		var orderRef *uint64
		if orderID > 0 {
			orderRef = &orderID
		}
		s.reject(ctx, n, orderRef, err)
		return err
	}
	if !handled {
		metrics.IPNIgnoredTotal.Inc()
		s.record(ctx, n, nil, entity.IPNMessageIgnored, nil)
		return nil
	}

	s.record(ctx, n, &orderID, entity.IPNMessageProcessed, nil)
	return nil
}

// Route is the single entry point for both pushed and polled notifications.
func (s *GatewayService) Route(ctx context.Context, n *ipn.Notification) error {
	_, _, err := s.route(ctx, n)
	return err
}

func actionable(n *ipn.Notification) bool {
	return n.Type == ipn.TypeNotification &&
		n.Version == ipn.VersionV2 &&
		n.NotificationType == ipn.NotificationStateChange
}

func (s *GatewayService) route(ctx context.Context, n *ipn.Notification) (uint64, bool, error) {
	if n == nil || !actionable(n) {
		return 0, false, nil
	}

	logger := s.logger.WithFields(logrus.Fields{
		"object_type": n.ObjectType,
		"object_id":   n.ObjectID,
		"mocked":      n.Mocked,
	})
	if !n.Mocked {
		logger.WithField("message_id", n.MessageID()).Info("Received IPN")
	}

	var (
		charge     *amazonpay.Charge
		permission *amazonpay.ChargePermission
		refund     *amazonpay.Refund
		reference  string
		err        error
	)
	switch n.ObjectType {
	case ipn.ObjectCharge:
		charge, err = s.api.GetCharge(ctx, n.ObjectID)
		if err != nil {
			return 0, false, err
		}
		reference = charge.MerchantMetadata.MerchantReferenceID
	case ipn.ObjectChargePermission:
		permission, err = s.api.GetChargePermission(ctx, n.ObjectID)
		if err != nil {
			return 0, false, err
		}
		reference = permission.MerchantMetadata.MerchantReferenceID
	case ipn.ObjectRefund:
		refund, err = s.api.GetRefund(ctx, n.ObjectID)
		if err != nil {
			return 0, false, err
		}
		parent, err := s.api.GetCharge(ctx, refund.ChargeID)
		if err != nil {
			return 0, false, err
		}
		reference = parent.MerchantMetadata.MerchantReferenceID
	default:
		return 0, false, fmt.Errorf("%w: %s", ErrNotImplemented, n.ObjectType)
	}

	orderID, err := parseOrderReference(reference)
	if err != nil {
		return 0, false, err
	}
	order, err := s.loadGatewayOrder(ctx, orderID)
	if err != nil {
		return orderID, false, err
	}

	if !n.Mocked {
		s.unschedulePoll(ctx, orderID, n.ObjectType)
	}

	switch n.ObjectType {
	case ipn.ObjectCharge:
		_, err = s.ApplyChargeUpdate(ctx, order, charge)
	case ipn.ObjectChargePermission:
		_, err = s.ApplyChargePermissionUpdate(ctx, order, permission)
	case ipn.ObjectRefund:
		_, err = s.ApplyRefund(ctx, order, refund, 0)
	}
	if err != nil {
		logger.WithError(err).WithField("order_id", orderID).Error("Notification dispatch failed")
		return orderID, false, err
	}
	return orderID, true, nil
}

func (s *GatewayService) reject(ctx context.Context, n *ipn.Notification, orderID *uint64, cause error) {
	class := ipn.ClassOf(cause)
	metrics.IPNRejectedTotal.WithLabelValues(string(class)).Inc()

	fields := logrus.Fields{"class": class}
	if n != nil {
		fields["message_id"] = n.MessageID()
	}
	s.logger.WithError(cause).WithFields(fields).Warn("IPN rejected")
	s.record(ctx, n, orderID, entity.IPNMessageRejected, cause)
}

func (s *GatewayService) record(ctx context.Context, n *ipn.Notification, orderID *uint64, status int32, cause error) {
	if s.messages == nil {
		return
	}
	message := &entity.IPNMessage{
		OrderID:   orderID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if n != nil {
		message.MessageID = n.MessageID()
		message.ObjectType = string(n.ObjectType)
		message.ObjectID = n.ObjectID
	}
	if cause != nil {
		class := string(ipn.ClassOf(cause))
		reason := truncate(cause.Error(), maxLedgerErrorLength)
		message.ErrorClass = &class
		message.Error = &reason
	}
	if err := s.messages.Create(ctx, message); err != nil {
		s.logger.WithError(err).Warn("Failed to record IPN message")
	}
}
