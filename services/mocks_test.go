package services_test

import (
	"context"
	"sync"
	"time"

	"plan-delivery-service/models"
	"plan-delivery-service/sender"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ---- fake lock store ----

type fakeLockStore struct {
	mu        sync.Mutex
	locks     map[string]string
	processed map[string]bool

	acquireErr       error
	validateOverride *bool // forces Validate when set
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{
		locks:     make(map[string]string),
		processed: make(map[string]bool),
	}
}

func (s *fakeLockStore) Acquire(_ context.Context, txnID string, _ time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return "", false, s.acquireErr
	}
	if _, held := s.locks[txnID]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[txnID] = token
	return token, true, nil
}

func (s *fakeLockStore) Release(_ context.Context, txnID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[txnID] == token {
		delete(s.locks, txnID)
	}
	return nil
}

func (s *fakeLockStore) Validate(_ context.Context, txnID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validateOverride != nil {
		return *s.validateOverride, nil
	}
	return s.locks[txnID] == token, nil
}

func (s *fakeLockStore) MarkProcessed(_ context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[txnID] = true
	return nil
}

func (s *fakeLockStore) WasProcessed(_ context.Context, txnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[txnID], nil
}

// ---- fake payment repository ----

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) add(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.TransactionID] = &cp
}

func (r *fakePaymentRepo) CreateIfAbsent(_ context.Context, payment *models.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.TransactionID]; ok {
		return false, nil
	}
	cp := *payment
	r.payments[payment.TransactionID] = &cp
	return true, nil
}

func (r *fakePaymentRepo) GetByTransactionID(_ context.Context, txnID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[txnID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) UpdateStatus(_ context.Context, txnID, status string, extra map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[txnID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Status = status
	for k, v := range extra {
		switch k {
		case "delivered_at":
			if t, ok := v.(time.Time); ok {
				p.DeliveredAt = &t
			}
		case "failed_at":
			if t, ok := v.(time.Time); ok {
				p.FailedAt = &t
			}
		case "failure_stage":
			if s, ok := v.(string); ok {
				p.FailureStage = &s
			}
		case "plan_key":
			if s, ok := v.(string); ok {
				p.PlanKey = &s
			}
		}
	}
	return nil
}

func (r *fakePaymentRepo) LinkOrder(_ context.Context, txnID string, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[txnID]; ok {
		p.OrderID = &orderID
	}
	return nil
}

// ---- fake resolution repository ----

type fakeResolutionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.ManualResolutionItem
}

func newFakeResolutionRepo() *fakeResolutionRepo {
	return &fakeResolutionRepo{items: make(map[uuid.UUID]*models.ManualResolutionItem)}
}

func (r *fakeResolutionRepo) all() []models.ManualResolutionItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ManualResolutionItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out
}

func (r *fakeResolutionRepo) Create(_ context.Context, item *models.ManualResolutionItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeResolutionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ManualResolutionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *fakeResolutionRepo) List(_ context.Context, filter models.ResolutionFilter) ([]models.ManualResolutionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ManualResolutionItem
	for _, item := range r.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeResolutionRepo) MarkInProgress(_ context.Context, id uuid.UUID, operator string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || (item.Status != models.ResolutionPending && item.Status != models.ResolutionInProgress) {
		return false, nil
	}
	item.Status = models.ResolutionInProgress
	item.AssignedOperator = &operator
	return true, nil
}

func (r *fakeResolutionRepo) MarkResolved(_ context.Context, id uuid.UUID, operator, notes string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status == models.ResolutionResolved {
		return false, nil
	}
	item.Status = models.ResolutionResolved
	item.AssignedOperator = &operator
	item.ResolutionNotes = &notes
	item.ResolvedAt = &at
	return true, nil
}

func (r *fakeResolutionRepo) MarkEscalated(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.ResolutionPending {
		return false, nil
	}
	item.Status = models.ResolutionEscalated
	return true, nil
}

func (r *fakeResolutionRepo) ListBreached(_ context.Context, now time.Time) ([]models.ManualResolutionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ManualResolutionItem
	for _, item := range r.items {
		if item.Status == models.ResolutionPending && item.SLADeadline.Before(now) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeResolutionRepo) ListUnalerted(_ context.Context) ([]models.ManualResolutionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ManualResolutionItem
	for _, item := range r.items {
		if item.Status == models.ResolutionEscalated && item.AlertedAt == nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeResolutionRepo) MarkAlerted(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[id]; ok {
		item.AlertedAt = &at
	}
	return nil
}

// ---- scripted pipeline collaborators ----

type scriptedGenerator struct {
	mu    sync.Mutex
	calls int
	errs  []error // errs[i] is returned on call i; nil means success
	plan  *models.GeneratedPlan
}

func (g *scriptedGenerator) Generate(_ context.Context, _ models.PlanPreferences) (*models.GeneratedPlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	return g.plan, nil
}

type scriptedRenderer struct {
	mu    sync.Mutex
	calls int
	errs  []error
	doc   []byte
}

func (r *scriptedRenderer) Render(_ context.Context, _ *models.GeneratedPlan) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	return r.doc, nil
}

type scriptedStorage struct {
	mu       sync.Mutex
	putCalls int
	putErrs  []error
	signErr  error
}

func (s *scriptedStorage) Put(_ context.Context, key string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.putCalls
	s.putCalls++
	if i < len(s.putErrs) && s.putErrs[i] != nil {
		return "", s.putErrs[i]
	}
	return "plans/" + key, nil
}

func (s *scriptedStorage) SignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://example.com/signed/" + key, nil
}

type scriptedSender struct {
	mu    sync.Mutex
	calls int
	errs  []error
	to    []string
}

func (s *scriptedSender) SendEmail(_ context.Context, to, _, _ string) (sender.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.to = append(s.to, to)
	if i < len(s.errs) && s.errs[i] != nil {
		return sender.SendResult{}, s.errs[i]
	}
	return sender.SendResult{MessageID: "test", SentAt: time.Now()}, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.DeliveryEvent
	err    error
}

func (f *fakeEvents) SendDeliveryEvent(event models.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeAlerts struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (f *fakeAlerts) Publish(_ context.Context, _ string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}
