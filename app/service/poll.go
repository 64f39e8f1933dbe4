package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/factory"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
	"github.com/vibast-solutions/ms-go-amazonpay/app/queue"
)

const defaultPollDelay = time.Minute

// PollScheduler keeps at most one fallback poll job per (order, object type).
type PollScheduler struct {
	queue  queue.Queue
	delay  time.Duration
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewPollScheduler(q queue.Queue, delay time.Duration) *PollScheduler {
	if delay <= 0 {
		delay = defaultPollDelay
	}
	return &PollScheduler{
		queue:  q,
		delay:  delay,
		now:    func() time.Time { return time.Now().UTC() },
		logger: factory.NewModuleLogger("poll-scheduler"),
	}
}

func (p *PollScheduler) Schedule(ctx context.Context, orderID uint64, objectType ipn.ObjectType) error {
	key := queue.JobKey{OrderID: orderID, ObjectType: string(objectType)}
	added, err := p.queue.Schedule(ctx, key, p.now().Add(p.delay))
	if err != nil {
		return err
	}
	if added {
		metrics.PollJobsTotal.WithLabelValues(string(objectType), "scheduled").Inc()
		p.logger.Infof("Scheduling %s for %d", objectType, orderID)
	}
	return nil
}

func (p *PollScheduler) Unschedule(ctx context.Context, orderID uint64, objectType ipn.ObjectType) error {
	key := queue.JobKey{OrderID: orderID, ObjectType: string(objectType)}
	removed, err := p.queue.UnscheduleAll(ctx, key)
	if err != nil {
		return err
	}
	if removed > 0 {
		metrics.PollJobsTotal.WithLabelValues(string(objectType), "unscheduled").Add(float64(removed))
	}
	p.logger.Infof("Unscheduling %s for %d", objectType, orderID)
	return nil
}

// Pending lists the pending jobs of every pollable object type for the order.
func (p *PollScheduler) Pending(ctx context.Context, orderID uint64) ([]queue.Job, error) {
	jobs := make([]queue.Job, 0, 2)
	for _, objectType := range []ipn.ObjectType{ipn.ObjectCharge, ipn.ObjectChargePermission} {
		items, err := p.queue.ListPending(ctx, queue.JobKey{OrderID: orderID, ObjectType: string(objectType)})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, items...)
	}
	return jobs, nil
}

func (p *PollScheduler) Claim(ctx context.Context, limit int) ([]queue.Job, error) {
	return p.queue.ClaimDue(ctx, p.now(), limit)
}

// FirePoll synthesizes a mocked state change for the order's known object id and routes it.
// CHARGE polls are skipped until a charge id is known: a charge cannot be looked up by its
// charge permission.
func (s *GatewayService) FirePoll(ctx context.Context, orderID uint64, objectType ipn.ObjectType) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	logger := s.logger.WithFields(logrus.Fields{
		"order_id":    orderID,
		"object_type": objectType,
	})
	if order.PaymentMethod != s.cfg.GatewayID {
		logger.Debug("Skipping poll for order of another gateway")
		return nil
	}

	permissionID := order.GetMeta(entity.MetaChargePermissionID)
	objectType = ipn.ObjectType(strings.ToUpper(string(objectType)))
	var objectID string
	switch objectType {
	case ipn.ObjectCharge:
		objectID = order.GetMeta(entity.MetaChargeID)
		if objectID == "" {
			logger.Debug("Skipping charge poll, no charge id known yet")
			return nil
		}
	case ipn.ObjectChargePermission:
		objectID = permissionID
	}

	return s.Route(ctx, ipn.NewMockedNotification(objectType, objectID, permissionID))
}

// RunPollBatch claims due poll jobs and fires them. It returns the number of claimed jobs
// and the first failure.
func (s *GatewayService) RunPollBatch(ctx context.Context) (int, error) {
	if s.poller == nil {
		return 0, nil
	}
	jobs, err := s.poller.Claim(ctx, s.cfg.PollBatchSize)
	if err != nil {
		return 0, err
	}

	if len(jobs) == 0 {
		return 0, nil
	}

	logger := s.logger.WithField("batch_id", uuid.NewString())
	logger.WithField("jobs", len(jobs)).Debug("Firing poll batch")

	var firstErr error
	for _, job := range jobs {
		objectType := job.Key.ObjectType
		if err := s.FirePoll(ctx, job.Key.OrderID, ipn.ObjectType(objectType)); err != nil {
			metrics.PollJobsTotal.WithLabelValues(objectType, "failed").Inc()
			logger.WithError(err).WithFields(logrus.Fields{
				"order_id":    job.Key.OrderID,
				"object_type": objectType,
			}).Warn("Poll job failed")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		metrics.PollJobsTotal.WithLabelValues(objectType, "fired").Inc()
	}
	return len(jobs), firstErr
}

type reconcileOrderRequest interface {
	GetOrderID() uint64
	GetObjectType() string
}

// ReconcileOrder runs the poll path for the order right away.
func (s *GatewayService) ReconcileOrder(ctx context.Context, req reconcileOrderRequest) (*entity.Order, error) {
	objectType := ipn.ObjectType(strings.ToUpper(strings.TrimSpace(req.GetObjectType())))
	if req.GetOrderID() == 0 || (objectType != ipn.ObjectCharge && objectType != ipn.ObjectChargePermission) {
		return nil, ErrInvalidRequest
	}
	if _, err := s.loadGatewayOrder(ctx, req.GetOrderID()); err != nil {
		return nil, err
	}
	if err := s.FirePoll(ctx, req.GetOrderID(), objectType); err != nil {
		return nil, err
	}
	return s.loadGatewayOrder(ctx, req.GetOrderID())
}

type PaymentState struct {
	Order                  *entity.Order
	CheckoutSessionID      string
	ChargeID               string
	ChargePermissionID     string
	ChargeStatus           *entity.StatusSnapshot
	ChargePermissionStatus *entity.StatusSnapshot
	RefundIDs              []string
	Refunds                []*entity.OrderRefund
	PendingPolls           []queue.Job
}

// GetOrderPaymentState returns the cached payment view of the order. With refresh, absent
// cached statuses are fetched from the payment API first.
func (s *GatewayService) GetOrderPaymentState(ctx context.Context, orderID uint64, refresh bool) (*PaymentState, error) {
	if orderID == 0 {
		return nil, ErrInvalidRequest
	}
	order, err := s.loadGatewayOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	chargeStatus, err := s.CachedChargeStatus(ctx, order, !refresh)
	if err != nil {
		return nil, err
	}
	permissionStatus, err := s.CachedChargePermissionStatus(ctx, order, !refresh)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	pending := []queue.Job{}
	if s.poller != nil {
		pending, err = s.poller.Pending(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}

	return &PaymentState{
		Order:                  order,
		CheckoutSessionID:      order.GetMeta(entity.MetaCheckoutSessionID),
		ChargeID:               order.GetMeta(entity.MetaChargeID),
		ChargePermissionID:     order.GetMeta(entity.MetaChargePermissionID),
		ChargeStatus:           chargeStatus,
		ChargePermissionStatus: permissionStatus,
		RefundIDs:              order.GetMetaValues(entity.MetaRefundID),
		Refunds:                refunds,
		PendingPolls:           pending,
	}, nil
}
