package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/factory"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/repository"
)

const (
	defaultGatewayID     = "amazon_payments_advanced"
	defaultPollBatchSize = 100
	maxMetaWriteAttempts = 5
)

type paymentAPI interface {
	GetCharge(ctx context.Context, chargeID string) (*amazonpay.Charge, error)
	GetChargePermission(ctx context.Context, chargePermissionID string) (*amazonpay.ChargePermission, error)
	GetRefund(ctx context.Context, refundID string) (*amazonpay.Refund, error)
	RefundCharge(ctx context.Context, chargeID string, amount amazonpay.Price) (*amazonpay.Refund, error)
	GetCheckoutSession(ctx context.Context, checkoutSessionID string) (*amazonpay.CheckoutSession, error)
	UpdateCheckoutSession(ctx context.Context, checkoutSessionID string, payload *amazonpay.UpdateCheckoutSessionRequest) (*amazonpay.CheckoutSession, error)
	CompleteCheckoutSession(ctx context.Context, checkoutSessionID string, payload *amazonpay.CompleteCheckoutSessionRequest) (*amazonpay.CheckoutSession, error)
}

type orderRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Order, error)
	ReloadMeta(ctx context.Context, order *entity.Order) error
	ApplyMeta(ctx context.Context, order *entity.Order, ops []entity.MetaOp) error
	UpdateStatus(ctx context.Context, order *entity.Order, status string) (bool, error)
	MarkPaid(ctx context.Context, order *entity.Order, status, transactionID string) (bool, error)
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.OrderRefund) error
	Update(ctx context.Context, refund *entity.OrderRefund) error
	Delete(ctx context.Context, id uint64) error
	FindByID(ctx context.Context, id uint64) (*entity.OrderRefund, error)
	ListByOrder(ctx context.Context, orderID uint64) ([]*entity.OrderRefund, error)
}

type noteRepository interface {
	Create(ctx context.Context, note *entity.OrderNote) error
}

type stockRepository interface {
	Reduce(ctx context.Context, order *entity.Order) (bool, error)
	Restore(ctx context.Context, order *entity.Order) (bool, error)
}

type ipnMessageRepository interface {
	Create(ctx context.Context, message *entity.IPNMessage) error
}

type notificationValidator interface {
	Validate(ctx context.Context, raw []byte) (*ipn.Notification, error)
}

type Config struct {
	// GatewayID is the payment method tag orders must carry to be handled here.
	GatewayID         string
	MerchantStoreName string
	// PaymentCapture is "" (capture at authorization), "authorize" or "manual".
	PaymentCapture string
	// AuthorizationMode is "sync" or "async".
	AuthorizationMode string
	PollBatchSize     int
}

type GatewayService struct {
	api       paymentAPI
	orders    orderRepository
	refunds   refundRepository
	notes     noteRepository
	stock     stockRepository
	messages  ipnMessageRepository
	validator notificationValidator
	poller    *PollScheduler
	cfg       Config
	logger    logrus.FieldLogger
}

func NewGatewayService(
	api paymentAPI,
	orders orderRepository,
	refunds refundRepository,
	notes noteRepository,
	stock stockRepository,
	messages ipnMessageRepository,
	validator notificationValidator,
	poller *PollScheduler,
	cfg Config,
) *GatewayService {
	if strings.TrimSpace(cfg.GatewayID) == "" {
		cfg.GatewayID = defaultGatewayID
	}
	if cfg.PollBatchSize <= 0 {
		cfg.PollBatchSize = defaultPollBatchSize
	}

	return &GatewayService{
		api:       api,
		orders:    orders,
		refunds:   refunds,
		notes:     notes,
		stock:     stock,
		messages:  messages,
		validator: validator,
		poller:    poller,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("gateway-service"),
	}
}

// parseOrderReference accepts a positive decimal order id.
func parseOrderReference(reference string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(reference), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w %s", ErrInvalidOrderID, reference)
	}
	return id, nil
}

func (s *GatewayService) loadGatewayOrder(ctx context.Context, orderID uint64) (*entity.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if order.PaymentMethod != s.cfg.GatewayID {
		return nil, fmt.Errorf("Order ID %d %w", orderID, ErrWrongGateway)
	}
	return order, nil
}

// writeMeta applies the ops built by plan against freshly read metadata, retrying when
// another writer bumped the meta version in between. A nil plan result means nothing to write.
func (s *GatewayService) writeMeta(ctx context.Context, order *entity.Order, plan func(*entity.Order) []entity.MetaOp) error {
	for attempt := 1; ; attempt++ {
		ops := plan(order)
		if len(ops) == 0 {
			return nil
		}
		err := s.orders.ApplyMeta(ctx, order, ops)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrOrderMetaConflict) {
			return err
		}
		if attempt >= maxMetaWriteAttempts {
			return ErrConcurrentUpdate
		}
		s.logger.WithField("order_id", order.ID).Debug("Order meta changed concurrently, re-reading")
		if err := s.orders.ReloadMeta(ctx, order); err != nil {
			return err
		}
	}
}

func (s *GatewayService) addNote(ctx context.Context, order *entity.Order, note string) {
	err := s.notes.Create(ctx, &entity.OrderNote{
		OrderID:   order.ID,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to record order note")
	}
}

// schedulePoll never fails the caller; the next push or poll will reconcile anyway.
func (s *GatewayService) schedulePoll(ctx context.Context, orderID uint64, objectType ipn.ObjectType) {
	if s.poller == nil {
		return
	}
	if err := s.poller.Schedule(ctx, orderID, objectType); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":    orderID,
			"object_type": objectType,
		}).Warn("Failed to schedule poll job")
	}
}

func (s *GatewayService) unschedulePoll(ctx context.Context, orderID uint64, objectType ipn.ObjectType) {
	if s.poller == nil {
		return
	}
	if err := s.poller.Unschedule(ctx, orderID, objectType); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":    orderID,
			"object_type": objectType,
		}).Warn("Failed to unschedule poll job")
	}
}

func containsString(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func keepFirstErr(current, next error) error {
	if current != nil {
		return current
	}
	return next
}
