package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
)

func chargePending(status string) bool {
	switch status {
	case amazonpay.ChargeAuthorizationInitiated, amazonpay.ChargeAuthorized, amazonpay.ChargeCaptureInitiated:
		return true
	default:
		return false
	}
}

func chargePermissionOpen(status string) bool {
	return status == amazonpay.ChargePermissionChargeable || status == amazonpay.ChargePermissionNonChargeable
}

// ApplyChargeUpdate reconciles the order with charge and returns the resulting charge status.
// A nil charge is fetched by the cached charge id; without one there is nothing to do.
func (s *GatewayService) ApplyChargeUpdate(ctx context.Context, order *entity.Order, charge *amazonpay.Charge) (string, error) {
	chargeID := order.GetMeta(entity.MetaChargeID)
	if charge != nil && chargeID != charge.ChargeID {
		if err := s.writeMeta(ctx, order, clearCached(entity.MetaChargeID, entity.MetaChargeStatus)); err != nil {
			return "", err
		}
		chargeID = charge.ChargeID
	}
	if charge == nil {
		if chargeID == "" {
			return "", nil
		}
		fetched, err := s.api.GetCharge(ctx, chargeID)
		if err != nil {
			return "", err
		}
		charge = fetched
	}

	if err := s.orders.ReloadMeta(ctx, order); err != nil {
		return "", err
	}

	newStatus := charge.StatusDetails.State
	encoded, err := formatStatusDetails(charge.StatusDetails).Encode()
	if err != nil {
		return "", err
	}

	var oldStatus string
	changed := false
	err = s.writeMeta(ctx, order, func(current *entity.Order) []entity.MetaOp {
		oldStatus = cachedStatus(current, entity.MetaChargeStatus)
		if oldStatus == newStatus {
			changed = false
			return nil
		}
		changed = true
		return []entity.MetaOp{
			entity.SetMeta(entity.MetaChargeStatus, encoded),
			entity.SetMeta(entity.MetaChargeID, chargeID),
		}
	})
	if err != nil {
		return "", err
	}

	if !changed {
		if chargePending(oldStatus) {
			s.schedulePoll(ctx, order.ID, ipn.ObjectCharge)
		}
		return oldStatus, nil
	}

	metrics.StatusTransitionsTotal.WithLabelValues(string(ipn.ObjectCharge), newStatus).Inc()
	s.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"charge_id":  chargeID,
		"old_status": oldStatus,
		"new_status": newStatus,
	}).Info("Charge status changed")
	s.addNote(ctx, order, fmt.Sprintf("Charge %s with status %s.", chargeID, newStatus))

	switch newStatus {
	case amazonpay.ChargeAuthorizationInitiated, amazonpay.ChargeAuthorized, amazonpay.ChargeCaptureInitiated:
		if _, err := s.orders.UpdateStatus(ctx, order, entity.OrderStatusOnHold); err != nil {
			return newStatus, err
		}
		if _, err := s.stock.Reduce(ctx, order); err != nil {
			return newStatus, err
		}
		s.schedulePoll(ctx, order.ID, ipn.ObjectCharge)
	case amazonpay.ChargeCanceled, amazonpay.ChargeDeclined:
		if _, err := s.orders.UpdateStatus(ctx, order, entity.OrderStatusFailed); err != nil {
			return newStatus, err
		}
		if _, err := s.stock.Restore(ctx, order); err != nil {
			return newStatus, err
		}
	case amazonpay.ChargeCaptured:
		if err := s.completePayment(ctx, order, chargeID); err != nil {
			return newStatus, err
		}
	}

	return newStatus, nil
}

// ApplyChargePermissionUpdate mirrors ApplyChargeUpdate for the order's charge permission.
func (s *GatewayService) ApplyChargePermissionUpdate(ctx context.Context, order *entity.Order, permission *amazonpay.ChargePermission) (string, error) {
	permissionID := order.GetMeta(entity.MetaChargePermissionID)
	if permission != nil && permissionID != permission.ChargePermissionID {
		if err := s.writeMeta(ctx, order, clearCached(entity.MetaChargePermissionID, entity.MetaChargePermissionStatus)); err != nil {
			return "", err
		}
		permissionID = permission.ChargePermissionID
	}
	if permission == nil {
		if permissionID == "" {
			return "", nil
		}
		fetched, err := s.api.GetChargePermission(ctx, permissionID)
		if err != nil {
			return "", err
		}
		permission = fetched
	}

	if err := s.orders.ReloadMeta(ctx, order); err != nil {
		return "", err
	}

	newStatus := permission.StatusDetails.State
	encoded, err := formatStatusDetails(permission.StatusDetails).Encode()
	if err != nil {
		return "", err
	}

	var oldStatus string
	changed := false
	err = s.writeMeta(ctx, order, func(current *entity.Order) []entity.MetaOp {
		oldStatus = cachedStatus(current, entity.MetaChargePermissionStatus)
		if oldStatus == newStatus {
			changed = false
			return nil
		}
		changed = true
		return []entity.MetaOp{
			entity.SetMeta(entity.MetaChargePermissionStatus, encoded),
			entity.SetMeta(entity.MetaChargePermissionID, permissionID),
		}
	})
	if err != nil {
		return "", err
	}

	if !changed {
		if chargePermissionOpen(oldStatus) {
			s.schedulePoll(ctx, order.ID, ipn.ObjectChargePermission)
		}
		return oldStatus, nil
	}

	metrics.StatusTransitionsTotal.WithLabelValues(string(ipn.ObjectChargePermission), newStatus).Inc()
	s.logger.WithFields(logrus.Fields{
		"order_id":             order.ID,
		"charge_permission_id": permissionID,
		"old_status":           oldStatus,
		"new_status":           newStatus,
	}).Info("Charge permission status changed")
	s.addNote(ctx, order, fmt.Sprintf("Charge Permission %s with status %s.", permissionID, newStatus))

	switch newStatus {
	case amazonpay.ChargePermissionChargeable, amazonpay.ChargePermissionNonChargeable:
		s.schedulePoll(ctx, order.ID, ipn.ObjectChargePermission)
	case amazonpay.ChargePermissionClosed:
		// Closure after a charge is the normal end of the lifecycle.
		if cachedStatus(order, entity.MetaChargeStatus) != "" {
			break
		}
		if _, err := s.orders.UpdateStatus(ctx, order, entity.OrderStatusFailed); err != nil {
			return newStatus, err
		}
		if _, err := s.stock.Restore(ctx, order); err != nil {
			return newStatus, err
		}
	}

	return newStatus, nil
}

// completePayment marks the order paid once. Stock is reduced if no earlier hold did it.
func (s *GatewayService) completePayment(ctx context.Context, order *entity.Order, transactionID string) error {
	paid, err := s.orders.MarkPaid(ctx, order, entity.OrderStatusProcessing, transactionID)
	if err != nil {
		return err
	}
	if paid {
		s.logger.WithFields(logrus.Fields{
			"order_id":       order.ID,
			"transaction_id": transactionID,
		}).Info("Order paid")
	}
	_, err = s.stock.Reduce(ctx, order)
	return err
}

func clearCached(idKey, statusKey string) func(*entity.Order) []entity.MetaOp {
	return func(current *entity.Order) []entity.MetaOp {
		ops := make([]entity.MetaOp, 0, 2)
		for _, key := range []string{idKey, statusKey} {
			if len(current.GetMetaValues(key)) > 0 {
				ops = append(ops, entity.DeleteMeta(key))
			}
		}
		return ops
	}
}

// cachedStatus reads a cached snapshot without refreshing it. Unreadable values count as absent.
func cachedStatus(order *entity.Order, key string) string {
	snapshot, err := entity.ParseStatusSnapshot(order.GetMeta(key))
	if err != nil || snapshot == nil {
		return ""
	}
	return snapshot.Status
}

func formatStatusDetails(details amazonpay.StatusDetails) entity.StatusSnapshot {
	reasons := make([]entity.StatusReason, 0, len(details.Reasons)+1)
	for _, reason := range details.Reasons {
		reasons = append(reasons, entity.StatusReason{
			ReasonCode:        reason.ReasonCode,
			ReasonDescription: reason.ReasonDescription,
		})
	}
	if details.ReasonCode != "" {
		reasons = append(reasons, entity.StatusReason{ReasonCode: details.ReasonCode})
	}
	return entity.StatusSnapshot{Status: details.State, Reasons: reasons}
}

// CachedChargeStatus returns the cached charge snapshot. Unless readOnly, an absent snapshot
// is refreshed from the payment API using the cached charge id.
func (s *GatewayService) CachedChargeStatus(ctx context.Context, order *entity.Order, readOnly bool) (*entity.StatusSnapshot, error) {
	return s.cachedSnapshot(ctx, order, entity.MetaChargeStatus, readOnly, func() (*amazonpay.StatusDetails, error) {
		chargeID := order.GetMeta(entity.MetaChargeID)
		if chargeID == "" {
			return nil, nil
		}
		charge, err := s.api.GetCharge(ctx, chargeID)
		if err != nil {
			return nil, err
		}
		return &charge.StatusDetails, nil
	})
}

func (s *GatewayService) CachedChargePermissionStatus(ctx context.Context, order *entity.Order, readOnly bool) (*entity.StatusSnapshot, error) {
	return s.cachedSnapshot(ctx, order, entity.MetaChargePermissionStatus, readOnly, func() (*amazonpay.StatusDetails, error) {
		permissionID := order.GetMeta(entity.MetaChargePermissionID)
		if permissionID == "" {
			return nil, nil
		}
		permission, err := s.api.GetChargePermission(ctx, permissionID)
		if err != nil {
			return nil, err
		}
		return &permission.StatusDetails, nil
	})
}

func (s *GatewayService) cachedSnapshot(
	ctx context.Context,
	order *entity.Order,
	key string,
	readOnly bool,
	fetch func() (*amazonpay.StatusDetails, error),
) (*entity.StatusSnapshot, error) {
	snapshot, err := entity.ParseStatusSnapshot(order.GetMeta(key))
	if err == nil && snapshot != nil {
		return snapshot, nil
	}
	if readOnly {
		return &entity.StatusSnapshot{Reasons: []entity.StatusReason{}}, nil
	}

	details, err := fetch()
	if err != nil {
		return nil, err
	}
	if details == nil {
		return &entity.StatusSnapshot{Reasons: []entity.StatusReason{}}, nil
	}

	fresh := formatStatusDetails(*details)
	encoded, err := fresh.Encode()
	if err != nil {
		return nil, err
	}
	err = s.writeMeta(ctx, order, func(*entity.Order) []entity.MetaOp {
		return []entity.MetaOp{entity.SetMeta(key, encoded)}
	})
	if err != nil {
		return nil, err
	}
	return &fresh, nil
}
