// Package mempool runs the admission flow that gates ledger appends.
//
// A wallet first requests validation and receives a message to sign. A
// correct signature within the validation window turns the request into a
// single-use token, and the token authorises exactly one star registration.
// Requests and tokens live in memory only and expire on their own timers.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/star"
	"go.uber.org/zap"
)

// DefaultWindow is how long a validation request stays open.
const DefaultWindow = 300 * time.Second

const messageSuffix = "starRegistry"

// Verifier checks a signed challenge message. *signature.BitcoinVerifier
// satisfies this interface.
type Verifier interface {
	Verify(message, address, signature string) bool
}

// Appender persists a block body. *ledger.Ledger satisfies this interface.
type Appender interface {
	AddBlock(ctx context.Context, body any) (*ledger.Record, error)
}

// Timer is a scheduled expiry that can be cancelled.
type Timer interface {
	Stop() bool
}

// Config controls request lifetimes.
type Config struct {
	Window    time.Duration                         // zero means DefaultWindow
	Now       func() time.Time                      // nil means time.Now
	AfterFunc func(d time.Duration, f func()) Timer // nil means time.AfterFunc
}

// Request is a pending validation request as shown to clients.
type Request struct {
	WalletAddress    string `json:"walletAddress"`
	RequestTimeStamp int64  `json:"requestTimeStamp"`
	Message          string `json:"message"`
	ValidationWindow int64  `json:"validationWindow"`
}

// Status describes a validated request.
type Status struct {
	Address          string `json:"address"`
	RequestTimeStamp int64  `json:"requestTimeStamp"`
	Message          string `json:"message"`
	ValidationWindow int64  `json:"validationWindow"`
	MessageSignature bool   `json:"messageSignature"`
}

// Token is the single-use credential returned after a valid signature.
type Token struct {
	RegisterStar bool   `json:"registerStar"`
	Status       Status `json:"status"`

	// Remaining is the unrounded time left on the token.
	Remaining time.Duration `json:"-"`
}

// Stats counts live entries.
type Stats struct {
	Pending   int `json:"pending"`
	Validated int `json:"validated"`
}

type entry struct {
	address     string
	requestedAt time.Time
	message     string
	timer       Timer
}

// Mempool owns the pending and validated maps.
type Mempool struct {
	window   time.Duration
	now      func() time.Time
	after    func(d time.Duration, f func()) Timer
	verifier Verifier
	ledger   Appender
	logger   *zap.Logger
	locks    *addrLocks

	mu        sync.Mutex // guards the maps and closed; never held while waiting on an address lock
	pending   map[string]*entry
	validated map[string]*entry
	expired   map[string]*entry // pending requests whose window ran out, kept for one more window
	closed    bool

	record func(event string)
}

// New creates a Mempool.
func New(cfg Config, verifier Verifier, l Appender, logger *zap.Logger) *Mempool {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Mempool{
		window:    cfg.Window,
		now:       cfg.Now,
		after:     cfg.AfterFunc,
		verifier:  verifier,
		ledger:    l,
		logger:    logger,
		locks:     newAddrLocks(),
		pending:   make(map[string]*entry),
		validated: make(map[string]*entry),
		expired:   make(map[string]*entry),
		record:    func(string) {},
	}
}

// SetMetricsRecorder registers a callback invoked with one of "requested",
// "validated", "invalid_signature", "expired" or "consumed".
func (m *Mempool) SetMetricsRecorder(fn func(event string)) {
	if fn != nil {
		m.record = fn
	}
}

// RequestValidation opens a validation request for address. A live request
// is returned unchanged apart from its recomputed window.
func (m *Mempool) RequestValidation(address string) (*Request, error) {
	if address == "" {
		return nil, ErrInvalidAddress
	}
	unlock := m.locks.lock(address)
	defer unlock()

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if e, ok := m.pending[address]; ok {
		if m.remaining(e, now) > 0 {
			return m.request(e, now), nil
		}
		e.timer.Stop()
		delete(m.pending, address)
	}
	if x, ok := m.expired[address]; ok {
		x.timer.Stop()
		delete(m.expired, address)
	}

	ts := now.Unix()
	e := &entry{
		address:     address,
		requestedAt: now,
		message:     fmt.Sprintf("%s:%d:%s", address, ts, messageSuffix),
	}
	e.timer = m.after(m.remaining(e, now), func() { m.expire(m.pending, e, "pending") })
	m.pending[address] = e

	m.logger.Info("validation requested",
		zap.String("address", address),
		zap.Int64("request_timestamp", ts),
	)
	m.record("requested")
	return m.request(e, now), nil
}

// ValidateRequestByWallet checks signature against the pending message for
// address and, on success, promotes the request to a validated token. A
// request whose window ran out yields ErrExpired once, then ErrRequestNotFound.
func (m *Mempool) ValidateRequestByWallet(address, signature string) (*Token, error) {
	unlock := m.locks.lock(address)
	defer unlock()

	now := m.now()

	m.mu.Lock()
	e, ok := m.pending[address]
	if !ok {
		x, wasExpired := m.expired[address]
		if wasExpired {
			x.timer.Stop()
			delete(m.expired, address)
		}
		m.mu.Unlock()
		if wasExpired {
			return nil, ErrExpired
		}
		return nil, ErrRequestNotFound
	}
	m.mu.Unlock()

	if m.remaining(e, now) <= 0 {
		m.drop(m.pending, e)
		m.record("expired")
		return nil, ErrExpired
	}

	if !m.verifier.Verify(e.message, address, signature) {
		m.logger.Info("signature rejected", zap.String("address", address))
		m.record("invalid_signature")
		return nil, ErrInvalidSignature
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	e.timer.Stop()
	delete(m.pending, address)

	if prev, ok := m.validated[address]; ok {
		prev.timer.Stop()
	}
	v := &entry{address: address, requestedAt: e.requestedAt, message: e.message}
	v.timer = m.after(m.remaining(v, now), func() { m.expire(m.validated, v, "validated") })
	m.validated[address] = v

	m.logger.Info("request validated",
		zap.String("address", address),
		zap.Duration("remaining", m.remaining(v, now)),
	)
	m.record("validated")
	return m.token(v, now), nil
}

// SubmitStar appends a star registration for address, consuming its token.
// The token survives a rejected payload or a failed append.
func (m *Mempool) SubmitStar(ctx context.Context, address string, s star.Star) (*star.Block, error) {
	unlock := m.locks.lock(address)
	defer unlock()

	now := m.now()

	m.mu.Lock()
	v, ok := m.validated[address]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnauthorized
	}
	if m.remaining(v, now) <= 0 {
		m.drop(m.validated, v)
		m.record("expired")
		return nil, ErrUnauthorized
	}

	body, err := star.NewBody(address, s)
	if err != nil {
		return nil, err
	}

	rec, err := m.ledger.AddBlock(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("append star block: %w", err)
	}

	m.drop(m.validated, v)
	m.logger.Info("star registered",
		zap.String("address", address),
		zap.Int64("height", rec.Height),
		zap.String("hash", rec.Hash),
	)
	m.record("consumed")
	return star.Decorate(rec), nil
}

// Pending returns the live request for address.
func (m *Mempool) Pending(address string) (*Request, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[address]
	if !ok || m.remaining(e, now) <= 0 {
		return nil, false
	}
	return m.request(e, now), true
}

// Validated returns the live token for address.
func (m *Mempool) Validated(address string) (*Token, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validated[address]
	if !ok || m.remaining(v, now) <= 0 {
		return nil, false
	}
	return m.token(v, now), true
}

// Stats reports how many entries are held, including ones whose timer has
// not fired yet.
func (m *Mempool) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Pending: len(m.pending), Validated: len(m.validated)}
}

// Close stops every timer and discards all entries. Later calls that would
// create entries fail with ErrClosed.
func (m *Mempool) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, e := range m.pending {
		e.timer.Stop()
		delete(m.pending, addr)
	}
	for addr, v := range m.validated {
		v.timer.Stop()
		delete(m.validated, addr)
	}
	for addr, x := range m.expired {
		x.timer.Stop()
		delete(m.expired, addr)
	}
	m.closed = true
}

// expire runs on the entry's timer. It only removes e itself: a request that
// was promoted or replaced in the meantime is left alone. An expired pending
// request moves to the expired set so that validating it reports ErrExpired.
func (m *Mempool) expire(in map[string]*entry, e *entry, kind string) {
	unlock := m.locks.lock(e.address)
	defer unlock()

	m.mu.Lock()
	live := in[e.address] == e
	if live {
		delete(in, e.address)
		if kind == "pending" && !m.closed {
			e.timer = m.after(m.window, func() { m.forget(e) })
			m.expired[e.address] = e
		}
	}
	m.mu.Unlock()

	if live {
		m.logger.Debug("entry expired", zap.String("address", e.address), zap.String("kind", kind))
		m.record("expired")
	}
}

// forget discards an expired request nobody asked about.
func (m *Mempool) forget(e *entry) {
	unlock := m.locks.lock(e.address)
	defer unlock()

	m.mu.Lock()
	if m.expired[e.address] == e {
		delete(m.expired, e.address)
	}
	m.mu.Unlock()
}

// drop stops e's timer and removes it if it is still current. The caller
// holds the address lock.
func (m *Mempool) drop(in map[string]*entry, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.timer.Stop()
	if in[e.address] == e {
		delete(in, e.address)
	}
}

func (m *Mempool) remaining(e *entry, now time.Time) time.Duration {
	return m.window - now.Sub(e.requestedAt)
}

func (m *Mempool) request(e *entry, now time.Time) *Request {
	return &Request{
		WalletAddress:    e.address,
		RequestTimeStamp: e.requestedAt.Unix(),
		Message:          e.message,
		ValidationWindow: int64(m.remaining(e, now) / time.Second),
	}
}

func (m *Mempool) token(e *entry, now time.Time) *Token {
	return &Token{
		RegisterStar: true,
		Status: Status{
			Address:          e.address,
			RequestTimeStamp: e.requestedAt.Unix(),
			Message:          e.message,
			ValidationWindow: int64(m.remaining(e, now) / time.Second),
			MessageSignature: true,
		},
		Remaining: m.remaining(e, now),
	}
}

var (
	ErrInvalidAddress   = errors.New("wallet address must not be empty")
	ErrRequestNotFound  = errors.New("validation request not found")
	ErrExpired          = errors.New("validation window expired")
	ErrInvalidSignature = errors.New("message signature is invalid")
	ErrUnauthorized     = errors.New("address has no validated request")
	ErrClosed           = errors.New("mempool closed")
)
