package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/queue"
	"github.com/vibast-solutions/ms-go-amazonpay/app/service"
	"github.com/vibast-solutions/ms-go-amazonpay/app/types"
)

func OrderToResponse(item *entity.Order) *types.Order {
	if item == nil {
		return nil
	}

	return &types.Order{
		ID:            item.ID,
		PaymentMethod: item.PaymentMethod,
		Status:        item.Status,
		Total:         item.Total,
		Currency:      item.Currency,
		TransactionID: derefString(item.TransactionID),
		PaidAt:        formatTime(item.PaidAt),
		StockReduced:  item.StockReduced,
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func RefundToResponse(item *entity.OrderRefund) *types.Refund {
	if item == nil {
		return nil
	}

	return &types.Refund{
		ID:              item.ID,
		OrderID:         item.OrderID,
		Amount:          item.Amount,
		Reason:          item.Reason,
		AmazonRefundID:  derefString(item.AmazonRefundID),
		RefundedPayment: item.RefundedPayment,
		CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func RefundsToResponse(items []*entity.OrderRefund) []*types.Refund {
	result := make([]*types.Refund, 0, len(items))
	for _, item := range items {
		result = append(result, RefundToResponse(item))
	}
	return result
}

func PaymentStateToResponse(state *service.PaymentState) *types.PaymentState {
	if state == nil {
		return nil
	}

	refundIDs := state.RefundIDs
	if refundIDs == nil {
		refundIDs = []string{}
	}

	return &types.PaymentState{
		Order:                  OrderToResponse(state.Order),
		CheckoutSessionID:      state.CheckoutSessionID,
		ChargeID:               state.ChargeID,
		ChargePermissionID:     state.ChargePermissionID,
		ChargeStatus:           statusToResponse(state.ChargeStatus),
		ChargePermissionStatus: statusToResponse(state.ChargePermissionStatus),
		RefundIDs:              refundIDs,
		Refunds:                RefundsToResponse(state.Refunds),
		PendingPolls:           pollJobsToResponse(state.PendingPolls),
	}
}

func statusToResponse(snapshot *entity.StatusSnapshot) *types.StatusSnapshot {
	if snapshot == nil {
		return nil
	}

	reasons := make([]*types.StatusReason, 0, len(snapshot.Reasons))
	for _, reason := range snapshot.Reasons {
		reasons = append(reasons, &types.StatusReason{
			ReasonCode:        reason.ReasonCode,
			ReasonDescription: reason.ReasonDescription,
		})
	}
	return &types.StatusSnapshot{Status: snapshot.Status, Reasons: reasons}
}

func pollJobsToResponse(jobs []queue.Job) []*types.PollJob {
	result := make([]*types.PollJob, 0, len(jobs))
	for _, job := range jobs {
		result = append(result, &types.PollJob{
			ObjectType: job.Key.ObjectType,
			RunAt:      job.RunAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
