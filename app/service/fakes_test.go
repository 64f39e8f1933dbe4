package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/entity"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/queue"
	"github.com/vibast-solutions/ms-go-amazonpay/app/repository"
)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uint64]*entity.Order

	metaWrites   map[string]int
	statusWrites int
	// beforeApply runs once before the next ApplyMeta, to simulate a racing writer.
	beforeApply func(order *entity.Order)
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:     map[uint64]*entity.Order{},
		metaWrites: map[string]int{},
	}
}

func cloneOrder(order *entity.Order) *entity.Order {
	copyItem := *order
	copyItem.Meta = append([]entity.OrderMeta(nil), order.Meta...)
	return &copyItem
}

func (s *fakeOrderStore) put(order *entity.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
}

func (s *fakeOrderStore) get(id uint64) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *fakeOrderStore) FindByID(_ context.Context, id uint64) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(order), nil
}

func (s *fakeOrderStore) ReloadMeta(_ context.Context, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Meta = append([]entity.OrderMeta(nil), stored.Meta...)
	order.MetaVersion = stored.MetaVersion
	return nil
}

func (s *fakeOrderStore) ApplyMeta(_ context.Context, order *entity.Order, ops []entity.MetaOp) error {
	s.mu.Lock()
	hook := s.beforeApply
	s.beforeApply = nil
	s.mu.Unlock()
	if hook != nil {
		hook(order)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.orders[order.ID]
	if stored.MetaVersion != order.MetaVersion {
		return repository.ErrOrderMetaConflict
	}
	stored.Meta = entity.ApplyMetaOps(stored.Meta, ops)
	stored.MetaVersion++
	for _, op := range ops {
		s.metaWrites[op.Key]++
	}
	order.Meta = entity.ApplyMetaOps(order.Meta, ops)
	order.MetaVersion = stored.MetaVersion
	return nil
}

// externalMetaWrite changes stored metadata behind the caller's back.
func (s *fakeOrderStore) externalMetaWrite(orderID uint64, ops ...entity.MetaOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.orders[orderID]
	stored.Meta = entity.ApplyMetaOps(stored.Meta, ops)
	stored.MetaVersion++
}

func (s *fakeOrderStore) UpdateStatus(_ context.Context, order *entity.Order, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.orders[order.ID]
	order.Status = status
	if stored.Status == status {
		return false, nil
	}
	stored.Status = status
	s.statusWrites++
	return true, nil
}

func (s *fakeOrderStore) MarkPaid(_ context.Context, order *entity.Order, status, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.orders[order.ID]
	if stored.PaidAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	stored.PaidAt = &now
	stored.Status = status
	stored.TransactionID = &transactionID
	order.PaidAt = &now
	order.Status = status
	order.TransactionID = &transactionID
	return true, nil
}

type fakeStock struct {
	store    *fakeOrderStore
	reduced  int
	restored int
}

func (f *fakeStock) Reduce(_ context.Context, order *entity.Order) (bool, error) {
	return f.adjust(order, true)
}

func (f *fakeStock) Restore(_ context.Context, order *entity.Order) (bool, error) {
	return f.adjust(order, false)
}

func (f *fakeStock) adjust(order *entity.Order, reduce bool) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	stored := f.store.orders[order.ID]
	order.StockReduced = reduce
	if stored.StockReduced == reduce {
		return false, nil
	}
	stored.StockReduced = reduce
	if reduce {
		f.reduced++
	} else {
		f.restored++
	}
	return true, nil
}

type fakeRefundRepo struct {
	mu      sync.Mutex
	refunds map[uint64]*entity.OrderRefund
	nextID  uint64
	deleted []uint64
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{refunds: map[uint64]*entity.OrderRefund{}, nextID: 1}
}

func (r *fakeRefundRepo) Create(_ context.Context, refund *entity.OrderRefund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refund.ID = r.nextID
	r.nextID++
	copyItem := *refund
	r.refunds[refund.ID] = &copyItem
	return nil
}

func (r *fakeRefundRepo) Update(_ context.Context, refund *entity.OrderRefund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if refund.AmazonRefundID != nil {
		for id, item := range r.refunds {
			if id != refund.ID && item.AmazonRefundID != nil && *item.AmazonRefundID == *refund.AmazonRefundID {
				return repository.ErrRefundAlreadyExists
			}
		}
	}
	copyItem := *refund
	r.refunds[refund.ID] = &copyItem
	return nil
}

func (r *fakeRefundRepo) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refunds, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRefundRepo) FindByID(_ context.Context, id uint64) (*entity.OrderRefund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.refunds[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeRefundRepo) ListByOrder(_ context.Context, orderID uint64) ([]*entity.OrderRefund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.OrderRefund, 0)
	for id := uint64(1); id < r.nextID; id++ {
		item, ok := r.refunds[id]
		if !ok || item.OrderID != orderID {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

type fakeNoteRepo struct {
	notes []*entity.OrderNote
}

func (r *fakeNoteRepo) Create(_ context.Context, note *entity.OrderNote) error {
	note.ID = uint64(len(r.notes) + 1)
	r.notes = append(r.notes, note)
	return nil
}

type fakeMessageRepo struct {
	messages []*entity.IPNMessage
}

func (r *fakeMessageRepo) Create(_ context.Context, message *entity.IPNMessage) error {
	message.ID = uint64(len(r.messages) + 1)
	r.messages = append(r.messages, message)
	return nil
}

type fakeValidator struct {
	notification *ipn.Notification
	err          error
}

func (v *fakeValidator) Validate(_ context.Context, _ []byte) (*ipn.Notification, error) {
	return v.notification, v.err
}

var errAPIUnavailable = errors.New("payment api unavailable")

type fakeAPI struct {
	mu                sync.Mutex
	charges           map[string]*amazonpay.Charge
	chargePermissions map[string]*amazonpay.ChargePermission
	refunds           map[string]*amazonpay.Refund
	sessions          map[string]*amazonpay.CheckoutSession

	completeErr error
	refundErr   error
	calls       []string
	updates     []*amazonpay.UpdateCheckoutSessionRequest
	refundedFor []amazonpay.Price
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		charges:           map[string]*amazonpay.Charge{},
		chargePermissions: map[string]*amazonpay.ChargePermission{},
		refunds:           map[string]*amazonpay.Refund{},
		sessions:          map[string]*amazonpay.CheckoutSession{},
	}
}

func (a *fakeAPI) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *fakeAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAPI) setCharge(id, orderRef, state string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.charges[id] = &amazonpay.Charge{
		ChargeID:         id,
		StatusDetails:    amazonpay.StatusDetails{State: state},
		MerchantMetadata: amazonpay.MerchantMetadata{MerchantReferenceID: orderRef},
	}
}

func (a *fakeAPI) setChargePermission(id, orderRef, state string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chargePermissions[id] = &amazonpay.ChargePermission{
		ChargePermissionID: id,
		StatusDetails:      amazonpay.StatusDetails{State: state},
		MerchantMetadata:   amazonpay.MerchantMetadata{MerchantReferenceID: orderRef},
	}
}

func (a *fakeAPI) GetCharge(_ context.Context, chargeID string) (*amazonpay.Charge, error) {
	a.record("GetCharge " + chargeID)
	a.mu.Lock()
	defer a.mu.Unlock()
	charge, ok := a.charges[chargeID]
	if !ok {
		return nil, errAPIUnavailable
	}
	copyItem := *charge
	return &copyItem, nil
}

func (a *fakeAPI) GetChargePermission(_ context.Context, id string) (*amazonpay.ChargePermission, error) {
	a.record("GetChargePermission " + id)
	a.mu.Lock()
	defer a.mu.Unlock()
	permission, ok := a.chargePermissions[id]
	if !ok {
		return nil, errAPIUnavailable
	}
	copyItem := *permission
	return &copyItem, nil
}

func (a *fakeAPI) GetRefund(_ context.Context, refundID string) (*amazonpay.Refund, error) {
	a.record("GetRefund " + refundID)
	a.mu.Lock()
	defer a.mu.Unlock()
	refund, ok := a.refunds[refundID]
	if !ok {
		return nil, errAPIUnavailable
	}
	copyItem := *refund
	return &copyItem, nil
}

func (a *fakeAPI) RefundCharge(_ context.Context, chargeID string, amount amazonpay.Price) (*amazonpay.Refund, error) {
	a.record("RefundCharge " + chargeID)
	if a.refundErr != nil {
		return nil, a.refundErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refundedFor = append(a.refundedFor, amount)
	refund := &amazonpay.Refund{
		RefundID:      "R-" + chargeID,
		ChargeID:      chargeID,
		RefundAmount:  amount,
		StatusDetails: amazonpay.StatusDetails{State: "RefundInitiated"},
	}
	a.refunds[refund.RefundID] = refund
	return refund, nil
}

func (a *fakeAPI) GetCheckoutSession(_ context.Context, id string) (*amazonpay.CheckoutSession, error) {
	a.record("GetCheckoutSession " + id)
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[id]
	if !ok {
		return nil, errAPIUnavailable
	}
	copyItem := *session
	return &copyItem, nil
}

func (a *fakeAPI) UpdateCheckoutSession(_ context.Context, id string, payload *amazonpay.UpdateCheckoutSessionRequest) (*amazonpay.CheckoutSession, error) {
	a.record("UpdateCheckoutSession " + id)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, payload)
	session, ok := a.sessions[id]
	if !ok {
		return nil, errAPIUnavailable
	}
	session.PaymentDetails = *payload.PaymentDetails
	copyItem := *session
	return &copyItem, nil
}

func (a *fakeAPI) CompleteCheckoutSession(_ context.Context, id string, _ *amazonpay.CompleteCheckoutSessionRequest) (*amazonpay.CheckoutSession, error) {
	a.record("CompleteCheckoutSession " + id)
	if a.completeErr != nil {
		return nil, a.completeErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[id]
	if !ok {
		return nil, errAPIUnavailable
	}
	copyItem := *session
	return &copyItem, nil
}

type serviceFixture struct {
	svc      *GatewayService
	api      *fakeAPI
	store    *fakeOrderStore
	stock    *fakeStock
	refunds  *fakeRefundRepo
	notes    *fakeNoteRepo
	messages *fakeMessageRepo
	queue    *queue.MemoryQueue
	poller   *PollScheduler
}

func newServiceFixture(validator notificationValidator) *serviceFixture {
	store := newFakeOrderStore()
	f := &serviceFixture{
		api:      newFakeAPI(),
		store:    store,
		stock:    &fakeStock{store: store},
		refunds:  newFakeRefundRepo(),
		notes:    &fakeNoteRepo{},
		messages: &fakeMessageRepo{},
		queue:    queue.NewMemoryQueue(),
	}
	f.poller = NewPollScheduler(f.queue, time.Minute)
	f.svc = NewGatewayService(
		f.api,
		f.store,
		f.refunds,
		f.notes,
		f.stock,
		f.messages,
		validator,
		f.poller,
		Config{GatewayID: defaultGatewayID, MerchantStoreName: "Test Store"},
	)
	return f
}

func (f *serviceFixture) addOrder(id uint64, meta ...entity.OrderMeta) *entity.Order {
	order := &entity.Order{
		ID:            id,
		PaymentMethod: defaultGatewayID,
		Status:        entity.OrderStatusPending,
		Total:         "10.00",
		Currency:      "USD",
		Meta:          meta,
	}
	f.store.put(order)
	return f.store.get(id)
}

func (f *serviceFixture) pending(orderID uint64, objectType ipn.ObjectType) int {
	jobs, _ := f.queue.ListPending(context.Background(), queue.JobKey{OrderID: orderID, ObjectType: string(objectType)})
	return len(jobs)
}
