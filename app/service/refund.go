package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/repository"
)

type refundOrderRequest interface {
	GetOrderID() uint64
	GetAmount() string
	GetReason() string
}

// ApplyRefund records the vendor refund against the order. With localRefundID == 0 an
// existing local refund tagged with the vendor id is reused, otherwise a new one is created.
// Calling it again for the same vendor refund never creates a second local record.
func (s *GatewayService) ApplyRefund(ctx context.Context, order *entity.Order, refund *amazonpay.Refund, localRefundID uint64) (*entity.OrderRefund, error) {
	if refund == nil || strings.TrimSpace(refund.RefundID) == "" {
		return nil, fmt.Errorf("%w: missing vendor refund id", ErrRefundFailed)
	}
	vendorID := refund.RefundID

	var local *entity.OrderRefund
	created := false
	if localRefundID == 0 {
		existing, err := s.findTaggedRefund(ctx, order.ID, vendorID)
		if err != nil {
			return nil, err
		}
		local = existing
		if local == nil {
			now := time.Now().UTC()
			local = &entity.OrderRefund{
				OrderID:   order.ID,
				Amount:    refund.RefundAmount.Amount,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.refunds.Create(ctx, local); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
			}
			created = true
		}
	} else {
		found, err := s.refunds.FindByID(ctx, localRefundID)
		if err != nil {
			return nil, err
		}
		if found == nil || found.OrderID != order.ID {
			return nil, fmt.Errorf("%w: local refund %d not found", ErrRefundFailed, localRefundID)
		}
		local = found
	}

	local.AmazonRefundID = &vendorID
	local.RefundedPayment = true
	local.UpdatedAt = time.Now().UTC()
	if err := s.refunds.Update(ctx, local); err != nil {
		if !errors.Is(err, repository.ErrRefundAlreadyExists) {
			return nil, err
		}
		// A concurrent delivery tagged another record first.
		if created {
			if delErr := s.refunds.Delete(ctx, local.ID); delErr != nil {
				s.logger.WithError(delErr).WithField("refund_id", local.ID).Warn("Failed to drop duplicate local refund")
			}
		}
		existing, findErr := s.findTaggedRefund(ctx, order.ID, vendorID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		local = existing
	}

	err := s.writeMeta(ctx, order, func(current *entity.Order) []entity.MetaOp {
		if containsString(current.GetMetaValues(entity.MetaRefundID), vendorID) {
			return nil
		}
		return []entity.MetaOp{entity.AddMeta(entity.MetaRefundID, vendorID)}
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":         order.ID,
		"refund_id":        local.ID,
		"amazon_refund_id": vendorID,
		"created":          created,
	}).Info("Refund ingested")
	return local, nil
}

func (s *GatewayService) findTaggedRefund(ctx context.Context, orderID uint64, vendorID string) (*entity.OrderRefund, error) {
	items, err := s.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.AmazonRefundID != nil && *item.AmazonRefundID == vendorID {
			return item, nil
		}
	}
	return nil, nil
}

// RefundOrder issues a merchant refund against the order's cached charge.
func (s *GatewayService) RefundOrder(ctx context.Context, req refundOrderRequest) (*entity.OrderRefund, error) {
	amount := strings.TrimSpace(req.GetAmount())
	if req.GetOrderID() == 0 || amount == "" {
		return nil, ErrInvalidRequest
	}

	order, err := s.loadGatewayOrder(ctx, req.GetOrderID())
	if err != nil {
		return nil, err
	}
	chargeID := order.GetMeta(entity.MetaChargeID)
	if chargeID == "" {
		s.logger.WithField("order_id", order.ID).Warn("Order has no charge to refund")
		return nil, ErrNoCharge
	}

	now := time.Now().UTC()
	local := &entity.OrderRefund{
		OrderID:   order.ID,
		Amount:    amount,
		Reason:    strings.TrimSpace(req.GetReason()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.refunds.Create(ctx, local); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	s.logger.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"refund_id": local.ID,
	}).Info("Processing merchant refund")

	refund, err := s.api.RefundCharge(ctx, chargeID, amazonpay.Price{Amount: amount, CurrencyCode: order.Currency})
	if err != nil {
		if delErr := s.refunds.Delete(ctx, local.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("refund_id", local.ID).Warn("Failed to drop local refund")
		}
		return nil, err
	}

	return s.ApplyRefund(ctx, order, refund, local.ID)
}
