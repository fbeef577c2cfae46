package billing

import (
	"strings"
	"sync"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory Repository with the same conditional-update
// and unique-index semantics as the GORM implementation, so the service and
// handler tests exercise the real convergence logic without a database.
type fakeRepository struct {
	mu sync.Mutex

	nextID        uint
	subscriptions map[uint]*models.Subscription
	transactions  map[uint]*models.PaymentTransaction
	pendingGuests map[uint]*models.PendingGuestSubscription
	lifetimes     map[uint]*models.LifetimePurchase
	pixPayments   map[uint]*models.PixPayment
	profiles      map[uint]*models.Profile
	users         map[uint]*models.User
	webhookEvents map[uint]*models.WebhookEvent
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		subscriptions: make(map[uint]*models.Subscription),
		transactions:  make(map[uint]*models.PaymentTransaction),
		pendingGuests: make(map[uint]*models.PendingGuestSubscription),
		lifetimes:     make(map[uint]*models.LifetimePurchase),
		pixPayments:   make(map[uint]*models.PixPayment),
		profiles:      make(map[uint]*models.Profile),
		users:         make(map[uint]*models.User),
		webhookEvents: make(map[uint]*models.WebhookEvent),
	}
}

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) addUser(id uint, email string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{Email: strings.ToLower(email), Name: "Test User"}
	u.ID = id
	f.users[id] = u
	return u
}

func (f *fakeRepository) FindSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscriptions {
		if s.Provider == models.PaymentProviderStripe && s.ProviderSubscriptionID == providerSubscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindSubscriptionByCheckoutSession(checkoutSessionID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscriptions {
		if s.CheckoutSessionID != "" && s.CheckoutSessionID == checkoutSessionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindSubscriptionByID(id uint) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindTransactionByInvoiceID(providerInvoiceID string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.Provider == models.PaymentProviderStripe && tx.ProviderInvoiceID == providerInvoiceID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindTransactionByPaymentIntent(providerPaymentIntentID string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.ProviderPaymentIntentID != "" && tx.ProviderPaymentIntentID == providerPaymentIntentID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) HasPaidTransactionForSubscription(subscriptionID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.SubscriptionID != nil && *tx.SubscriptionID == subscriptionID &&
			tx.Status == models.TransactionStatusPaid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) FindLifetimePurchaseByPaymentIntent(providerPaymentIntentID string) (*models.LifetimePurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lp := range f.lifetimes {
		if lp.Provider == models.PaymentProviderStripe && lp.ProviderPaymentIntentID == providerPaymentIntentID {
			cp := *lp
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindPixPaymentByIntent(providerPaymentIntentID string) (*models.PixPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pixPayments {
		if p.Provider == models.PaymentProviderStripe && p.ProviderPaymentIntentID == providerPaymentIntentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) UpsertSubscription(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscriptions {
		if s.Provider == sub.Provider && s.ProviderSubscriptionID == sub.ProviderSubscriptionID {
			// Status never moves through an upsert.
			s.UserID = sub.UserID
			s.ProviderCustomerID = sub.ProviderCustomerID
			s.CheckoutSessionID = sub.CheckoutSessionID
			s.PlanRef = sub.PlanRef
			s.PlanType = sub.PlanType
			s.CurrentPeriodEnd = sub.CurrentPeriodEnd
			s.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
			s.AmountCents = sub.AmountCents
			s.Currency = sub.Currency
			s.IncludesWhatsApp = sub.IncludesWhatsApp
			*sub = *s
			return nil
		}
	}
	sub.ID = f.id()
	if sub.Status == "" {
		sub.Status = models.SubscriptionStatusPending
	}
	cp := *sub
	f.subscriptions[sub.ID] = &cp
	return nil
}

func (f *fakeRepository) CreateTransactionIfNotExists(tx *models.PaymentTransaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.Provider == tx.Provider && t.ProviderInvoiceID == tx.ProviderInvoiceID {
			return false, nil
		}
	}
	tx.ID = f.id()
	cp := *tx
	f.transactions[tx.ID] = &cp
	return true, nil
}

func (f *fakeRepository) CreatePendingGuestSubscription(p *models.PendingGuestSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.pendingGuests {
		if row.Provider == p.Provider && row.ProviderSubscriptionID == p.ProviderSubscriptionID {
			return nil
		}
	}
	p.ID = f.id()
	cp := *p
	f.pendingGuests[p.ID] = &cp
	return nil
}

func (f *fakeRepository) CreateLifetimePurchaseIfNotExists(lp *models.LifetimePurchase) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.lifetimes {
		if row.Provider == lp.Provider && row.ProviderPaymentIntentID == lp.ProviderPaymentIntentID {
			return false, nil
		}
	}
	lp.ID = f.id()
	cp := *lp
	f.lifetimes[lp.ID] = &cp
	return true, nil
}

func (f *fakeRepository) CreatePixPayment(p *models.PixPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.pixPayments {
		if row.Provider == p.Provider && row.ProviderPaymentIntentID == p.ProviderPaymentIntentID {
			return nil
		}
	}
	p.ID = f.id()
	cp := *p
	f.pixPayments[p.ID] = &cp
	return nil
}

func (f *fakeRepository) UpdateSubscriptionStatusCAS(id uint, target string, allowedFrom []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return false, nil
	}
	for _, from := range allowedFrom {
		if s.Status == from {
			s.Status = target
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) UpdatePixStatusCAS(providerPaymentIntentID, target string, allowedFrom []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pixPayments {
		if p.Provider != models.PaymentProviderStripe || p.ProviderPaymentIntentID != providerPaymentIntentID {
			continue
		}
		for _, from := range allowedFrom {
			if p.Status == from {
				p.Status = target
				if target == models.PixStatusPaid {
					now := time.Now()
					p.PaidAt = &now
				}
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (f *fakeRepository) CompleteLifetimePurchaseCAS(id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lp, ok := f.lifetimes[id]
	if !ok || lp.Status != models.LifetimeStatusPending {
		return false, nil
	}
	lp.Status = models.LifetimeStatusCompleted
	return true, nil
}

func (f *fakeRepository) ExpirePixPaymentsBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.pixPayments {
		if p.Status == models.PixStatusPending && p.ExpiresAt.Before(cutoff) {
			p.Status = models.PixStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) GetOrCreateProfile(userID uint) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.Profile{
		ID:                 f.id(),
		UserID:             userID,
		PlanType:           "free",
		SubscriptionStatus: models.ProfileSubscriptionNone,
	}
	f.profiles[userID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeRepository) UpdateProfileStateCAS(userID uint, planType, subscriptionStatus string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return false, nil
	}
	if p.PlanType == "admin" {
		return false, nil
	}
	if p.PlanType == planType && p.SubscriptionStatus == subscriptionStatus {
		return false, nil
	}
	p.PlanType = planType
	p.SubscriptionStatus = subscriptionStatus
	return true, nil
}

func (f *fakeRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, s := range f.subscriptions {
		if s.UserID != nil && *s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListLifetimePurchasesByUser(userID uint) ([]models.LifetimePurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LifetimePurchase
	for _, lp := range f.lifetimes {
		if lp.UserID != nil && *lp.UserID == userID {
			out = append(out, *lp)
		}
	}
	return out, nil
}

func (f *fakeRepository) FindPendingGuestSubscriptionsByEmail(email string) ([]models.PendingGuestSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PendingGuestSubscription
	for _, row := range f.pendingGuests {
		if row.Email == email && row.LinkedUserID == nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeRepository) ClaimPendingGuestSubscription(id, userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.pendingGuests[id]
	if !ok || row.LinkedUserID != nil {
		return false, nil
	}
	now := time.Now()
	row.LinkedUserID = &userID
	row.LinkedAt = &now
	return true, nil
}

func (f *fakeRepository) FindUnlinkedLifetimePurchasesByEmail(email string) ([]models.LifetimePurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LifetimePurchase
	for _, lp := range f.lifetimes {
		if lp.Email == email && lp.UserID == nil {
			out = append(out, *lp)
		}
	}
	return out, nil
}

func (f *fakeRepository) ClaimLifetimePurchase(id, userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lp, ok := f.lifetimes[id]
	if !ok || lp.UserID != nil {
		return false, nil
	}
	lp.UserID = &userID
	return true, nil
}

func (f *fakeRepository) FindUserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindUserByID(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.webhookEvents {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			cp := *e
			return false, &cp, nil
		}
	}
	event.ID = f.id()
	cp := *event
	f.webhookEvents[event.ID] = &cp
	stored := cp
	return true, &stored, nil
}

func (f *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.webhookEvents[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	return nil
}

// subscriptionStatus reads a row's status directly, bypassing the service.
func (f *fakeRepository) subscriptionStatus(id uint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[id]; ok {
		return s.Status
	}
	return ""
}

func (f *fakeRepository) profileState(userID uint) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[userID]; ok {
		return p.PlanType, p.SubscriptionStatus
	}
	return "", ""
}

// fakeNotifier records the side effects the service dispatched.
type fakeNotifier struct {
	mu         sync.Mutex
	purchases  []string // plan types, in dispatch order
	companions []string
}

func (n *fakeNotifier) PurchaseCompleted(userID uint, email, planType, paymentRef string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.purchases = append(n.purchases, planType)
}

func (n *fakeNotifier) CompanionActivation(userID uint, planType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.companions = append(n.companions, planType)
}

func (n *fakeNotifier) purchaseCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.purchases)
}

func (n *fakeNotifier) companionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.companions)
}
