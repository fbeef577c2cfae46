package paymentflow

import (
	"context"
	"sync"
	"time"

	"github.com/andreluizvr/textora/internal/pkg/billing"
	"github.com/gofiber/fiber/v2/log"
)

// State names the phases of a payment modal from QR code shown to terminal
// outcome. The machine is an explicit FSM instead of chained timers so that
// cancellation and attempt bounds are invariants rather than timer cleanup.
type State string

const (
	// StateWaiting means the payment has not been approved yet; the poll
	// timer is armed.
	StateWaiting State = "waiting"
	// StateChecking means a verification request is in flight.
	StateChecking State = "checking"
	// StateAwaitingActivation means the payment is approved but the profile
	// upgrade has not landed; polling stops and the user may trigger manual
	// activation.
	StateAwaitingActivation State = "awaiting_activation"
	// StateSuccess is terminal: everything reconciled.
	StateSuccess State = "success"
	// StateError is terminal: the payment expired or polling gave up.
	StateError State = "error"
)

// Client is the backend surface the machine talks to. The production
// implementation wraps the verification and manual activation endpoints.
type Client interface {
	PaymentStatus(ctx context.Context, paymentID string) (billing.VerificationStatus, error)
	ActivatePayment(ctx context.Context, paymentID string) error
}

// Config bounds the machine. Every field has a sane default.
type Config struct {
	// PollInterval is the verification poll cadence (default 5s).
	PollInterval time.Duration
	// MaxAttempts bounds the number of polls before giving up (default 36,
	// i.e. three minutes at the default cadence).
	MaxAttempts int
	// ExpireAfter is the hard payment window; when it elapses before the
	// payment is approved the machine fails terminally (default 30m).
	ExpireAfter time.Duration
	// OnSuccess fires exactly once when the machine reaches success.
	OnSuccess func()
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 36
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 30 * time.Minute
	}
}

// Messages surfaced to the UI on the error / awaiting paths.
const (
	MsgExpired       = "payment window expired, please start a new payment"
	MsgTakingTooLong = "this is taking longer than expected, please contact support"
)

type commandKind int

const (
	cmdManualActivate commandKind = iota
	cmdRecheck
)

// Machine drives one payment modal. All transitions happen on the Run
// goroutine; ManualActivate and Recheck only enqueue commands, mirroring a
// UI thread handing events to a worker.
type Machine struct {
	client    Client
	paymentID string
	cfg       Config

	mu        sync.Mutex
	state     State
	attempts  int
	lastError string

	commands    chan commandKind
	successOnce sync.Once
}

// NewMachine creates a machine in the waiting state. Run starts it.
func NewMachine(client Client, paymentID string, cfg Config) *Machine {
	cfg.applyDefaults()
	return &Machine{
		client:    client,
		paymentID: paymentID,
		cfg:       cfg,
		state:     StateWaiting,
		commands:  make(chan commandKind, 4),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the message attached to the current state, if any.
func (m *Machine) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Attempts returns how many polls have completed.
func (m *Machine) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// ManualActivate asks the run loop to call the manual activation endpoint.
// Only honored in awaiting_activation; other states ignore it.
func (m *Machine) ManualActivate() {
	select {
	case m.commands <- cmdManualActivate:
	default:
	}
}

// Recheck asks the run loop to re-query verification without re-triggering
// manual activation.
func (m *Machine) Recheck() {
	select {
	case m.commands <- cmdRecheck:
	default:
	}
}

// Run executes the machine until it reaches a terminal state or ctx is
// cancelled (the modal was closed). It returns the final state; on
// cancellation that is whatever state the machine was in, and no further
// transitions happen.
func (m *Machine) Run(ctx context.Context) State {
	expiry := time.NewTimer(m.cfg.ExpireAfter)
	defer expiry.Stop()
	poll := time.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()

	for {
		switch m.State() {
		case StateSuccess, StateError:
			return m.State()
		}

		select {
		case <-ctx.Done():
			return m.State()

		case <-expiry.C:
			// The hard payment window wins over any in-flight poll, but an
			// approved payment is past the point of expiring.
			if st := m.State(); st == StateWaiting || st == StateChecking {
				m.fail(MsgExpired)
				return StateError
			}

		case <-poll.C:
			if m.State() != StateWaiting {
				continue
			}
			m.poll(ctx)
			if m.State() == StateAwaitingActivation {
				// Nothing to poll for while waiting on the user.
				poll.Stop()
			}

		case cmd := <-m.commands:
			if m.State() != StateAwaitingActivation {
				continue
			}
			switch cmd {
			case cmdManualActivate:
				m.manualActivate(ctx)
			case cmdRecheck:
				m.recheck(ctx)
			}
		}
	}
}

func (m *Machine) poll(ctx context.Context) {
	m.setState(StateChecking, "")

	status, err := m.client.PaymentStatus(ctx, m.paymentID)
	if ctx.Err() != nil {
		// Modal closed while the request was in flight; drop the result.
		return
	}

	m.mu.Lock()
	m.attempts++
	attempts := m.attempts
	m.mu.Unlock()

	switch {
	case err != nil:
		log.Warnf("[PaymentFlow] Verification poll %d for %s failed: %v", attempts, m.paymentID, err)
		m.setState(StateWaiting, "")
	case status.Ready:
		m.succeed()
		return
	case status.PaymentApproved && !status.ProfileActivated:
		m.setState(StateAwaitingActivation, "")
		return
	default:
		m.setState(StateWaiting, "")
	}

	if attempts >= m.cfg.MaxAttempts {
		m.fail(MsgTakingTooLong)
	}
}

func (m *Machine) manualActivate(ctx context.Context) {
	err := m.client.ActivatePayment(ctx, m.paymentID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		// Stay put; the user can retry or recheck.
		m.setState(StateAwaitingActivation, err.Error())
		return
	}
	m.succeed()
}

func (m *Machine) recheck(ctx context.Context) {
	status, err := m.client.PaymentStatus(ctx, m.paymentID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.setState(StateAwaitingActivation, err.Error())
		return
	}
	if status.Ready {
		m.succeed()
		return
	}
	m.setState(StateAwaitingActivation, "")
}

func (m *Machine) succeed() {
	m.setState(StateSuccess, "")
	// One-shot: a success reached via manual activation and a racing
	// recheck must not double-fire the purchase-completed side effect.
	m.successOnce.Do(func() {
		if m.cfg.OnSuccess != nil {
			m.cfg.OnSuccess()
		}
	})
}

func (m *Machine) fail(msg string) {
	m.setState(StateError, msg)
}

func (m *Machine) setState(s State, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.lastError = errMsg
}
