package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// PixExpiry is the hard payment window for a PIX QR code.
const PixExpiry = 30 * time.Minute

// ErrInvalidPixPayment marks registration input the caller can fix.
var ErrInvalidPixPayment = errors.New("billing: invalid pix payment")

// RegisterPixPayment records an issued PIX attempt so the verification
// endpoint and the expiry sweeper have a row to operate on. Issuing the QR
// code itself happens upstream at the processor.
func (s *Service) RegisterPixPayment(ctx context.Context, userID uint, email, providerPaymentIntentID, planType string, amountCents int64, currency string) (*models.PixPayment, error) {
	_ = ctx
	providerPaymentIntentID = strings.TrimSpace(providerPaymentIntentID)
	if providerPaymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment intent id is required", ErrInvalidPixPayment)
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPixPayment)
	}

	// Replay-safe: re-registering the same intent returns the stored row.
	if existing, err := s.repo.FindPixPaymentByIntent(providerPaymentIntentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p := &models.PixPayment{
		Email:                   strings.ToLower(strings.TrimSpace(email)),
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: providerPaymentIntentID,
		PlanType:                firstNonEmptyString(planType, "pro"),
		AmountCents:             amountCents,
		Currency:                firstNonEmptyString(strings.ToLower(currency), "brl"),
		Status:                  models.PixStatusPending,
		ExpiresAt:               time.Now().Add(PixExpiry),
	}
	if userID != 0 {
		p.UserID = &userID
	}
	if err := s.repo.CreatePixPayment(p); err != nil {
		return nil, err
	}
	return p, nil
}

// PixExpirySweeper periodically flips pending PIX rows past their expiry to
// the terminal expired state. The conditional UPDATE only matches pending
// rows, so a payment confirmation racing the sweeper wins or loses cleanly.
type PixExpirySweeper struct {
	svc      *Service
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewPixExpirySweeper creates a sweeper; a non-positive interval defaults to
// one minute.
func NewPixExpirySweeper(svc *Service, interval time.Duration) *PixExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PixExpirySweeper{svc: svc, interval: interval}
}

// Start launches the sweeper loop.
func (w *PixExpirySweeper) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.stopCh = make(chan struct{})
	w.running = true
	w.wg.Add(1)
	go w.run()
	log.Infof("[Billing] PIX expiry sweeper running (interval=%s)", w.interval)
}

// Stop terminates the sweeper and waits for the loop to exit.
func (w *PixExpirySweeper) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
	w.wg.Wait()
	log.Info("[Billing] PIX expiry sweeper stopped")
}

func (w *PixExpirySweeper) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			expired, err := w.svc.repo.ExpirePixPaymentsBefore(time.Now())
			if err != nil {
				log.Errorf("[Billing] PIX expiry sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				log.Infof("[Billing] Expired %d PIX payment(s)", expired)
			}
		}
	}
}
