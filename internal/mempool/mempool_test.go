package mempool_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"github.com/jmerrifield20/starnotary/internal/star"
	"github.com/jmerrifield20/starnotary/internal/store"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Stubs ──────────────────────────────────────────────────────────────────

// fakeClock drives both Now and the expiry timers. Advance runs every timer
// that has come due.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clk  *fakeClock
	at   time.Time
	f    func()
	done bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) mempool.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, at: c.t.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	var due []*fakeTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.t):
			t.done = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// stubVerifier accepts "sig:<message>".
type stubVerifier struct{}

func (stubVerifier) Verify(message, _, signature string) bool {
	return signature == "sig:"+message
}

type failingAppender struct{ err error }

func (f failingAppender) AddBlock(context.Context, any) (*ledger.Record, error) {
	return nil, f.err
}

var sampleStar = star.Star{
	RA:    "16h 29m 1.0s",
	Dec:   "-26° 29' 24.9",
	Story: "Found star using https://www.google.com/sky/",
}

func newMempool(t *testing.T, app mempool.Appender) (*mempool.Mempool, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(0, 0)}
	if app == nil {
		l := ledger.New(store.NewMemoryStore(), zap.NewNop())
		if err := l.Init(ctx); err != nil {
			t.Fatal(err)
		}
		app = l
	}
	m := mempool.New(mempool.Config{Now: clk.Now, AfterFunc: clk.AfterFunc}, stubVerifier{}, app, zap.NewNop())
	t.Cleanup(m.Close)
	return m, clk
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestAdmissionFlow(t *testing.T) {
	m, clk := newMempool(t, nil)

	req, err := m.RequestValidation("addr1")
	if err != nil {
		t.Fatal(err)
	}
	if req.Message != "addr1:0:starRegistry" {
		t.Errorf("message: got %q", req.Message)
	}
	if req.ValidationWindow != 300 {
		t.Errorf("window: got %d, want 300", req.ValidationWindow)
	}

	clk.Advance(10 * time.Second)
	tok, err := m.ValidateRequestByWallet("addr1", "sig:"+req.Message)
	if err != nil {
		t.Fatal(err)
	}
	if !tok.RegisterStar || !tok.Status.MessageSignature {
		t.Errorf("unexpected token %+v", tok)
	}
	if tok.Status.ValidationWindow != 290 || tok.Remaining != 290*time.Second {
		t.Errorf("token window: got %d (%v), want 290", tok.Status.ValidationWindow, tok.Remaining)
	}
	if _, ok := m.Pending("addr1"); ok {
		t.Error("pending request should be gone after validation")
	}

	blk, err := m.SubmitStar(ctx, "addr1", sampleStar)
	if err != nil {
		t.Fatal(err)
	}
	if blk.Height != 1 {
		t.Errorf("height: got %d, want 1", blk.Height)
	}
	body, ok := blk.Body.(star.Body)
	if !ok {
		t.Fatalf("body type %T", blk.Body)
	}
	if body.Star.Story != star.EncodeStory(sampleStar.Story) {
		t.Errorf("story not hex encoded: %q", body.Star.Story)
	}
	if body.Star.StoryDecoded != sampleStar.Story {
		t.Errorf("storyDecoded: got %q", body.Star.StoryDecoded)
	}

	if _, err := m.SubmitStar(ctx, "addr1", sampleStar); !errors.Is(err, mempool.ErrUnauthorized) {
		t.Errorf("second submit: expected ErrUnauthorized, got %v", err)
	}
}

func TestRequestValidation_idempotent(t *testing.T) {
	m, clk := newMempool(t, nil)

	first, err := m.RequestValidation("a")
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Second)
	again, err := m.RequestValidation("a")
	if err != nil {
		t.Fatal(err)
	}
	if again.RequestTimeStamp != first.RequestTimeStamp || again.Message != first.Message {
		t.Errorf("live request should be returned unchanged: %+v vs %+v", again, first)
	}
	if again.ValidationWindow != 295 {
		t.Errorf("window: got %d, want 295", again.ValidationWindow)
	}
	if s := m.Stats(); s.Pending != 1 {
		t.Errorf("expected 1 pending, got %d", s.Pending)
	}
}

func TestRequestValidation_afterExpiryStartsFresh(t *testing.T) {
	m, clk := newMempool(t, nil)

	first, _ := m.RequestValidation("a")
	clk.Advance(301 * time.Second)
	second, err := m.RequestValidation("a")
	if err != nil {
		t.Fatal(err)
	}
	if second.RequestTimeStamp == first.RequestTimeStamp {
		t.Error("expired request should be replaced")
	}
	if second.ValidationWindow != 300 {
		t.Errorf("window: got %d", second.ValidationWindow)
	}
}

func TestRequestValidation_emptyAddress(t *testing.T) {
	m, _ := newMempool(t, nil)
	if _, err := m.RequestValidation(""); !errors.Is(err, mempool.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestValidate_notFound(t *testing.T) {
	m, _ := newMempool(t, nil)
	if _, err := m.ValidateRequestByWallet("nobody", "sig"); !errors.Is(err, mempool.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestValidate_expired(t *testing.T) {
	m, clk := newMempool(t, nil)
	req, _ := m.RequestValidation("a")

	clk.Advance(300 * time.Second)
	if _, ok := m.Pending("a"); ok {
		t.Fatal("expiry timer should have removed the pending request")
	}
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); !errors.Is(err, mempool.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// The expired request is purged.
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); !errors.Is(err, mempool.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound after purge, got %v", err)
	}
}

func TestValidate_expiredIsForgottenAfterAnotherWindow(t *testing.T) {
	m, clk := newMempool(t, nil)
	req, _ := m.RequestValidation("a")

	clk.Advance(300 * time.Second)
	clk.Advance(300 * time.Second)
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); !errors.Is(err, mempool.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestValidate_expiredThenRequestAgain(t *testing.T) {
	m, clk := newMempool(t, nil)
	m.RequestValidation("a")

	clk.Advance(300 * time.Second)
	req, err := m.RequestValidation("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); err != nil {
		t.Errorf("fresh request should validate, got %v", err)
	}
}

func TestValidate_invalidSignatureKeepsRequest(t *testing.T) {
	m, _ := newMempool(t, nil)
	req, _ := m.RequestValidation("a")

	if _, err := m.ValidateRequestByWallet("a", "forged"); !errors.Is(err, mempool.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, ok := m.Pending("a"); !ok {
		t.Fatal("request should survive a bad signature")
	}
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); err != nil {
		t.Errorf("retry with valid signature: %v", err)
	}
}

func TestValidate_replacesPreviousToken(t *testing.T) {
	m, clk := newMempool(t, nil)

	req, _ := m.RequestValidation("a")
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); err != nil {
		t.Fatal(err)
	}
	clk.Advance(100 * time.Second)
	req2, _ := m.RequestValidation("a")
	tok, err := m.ValidateRequestByWallet("a", "sig:"+req2.Message)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Status.RequestTimeStamp != 100 {
		t.Errorf("new token should belong to the second request, got ts %d", tok.Status.RequestTimeStamp)
	}
	if s := m.Stats(); s.Validated != 1 || s.Pending != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestSubmitStar_noToken(t *testing.T) {
	m, _ := newMempool(t, nil)
	if _, err := m.SubmitStar(ctx, "a", sampleStar); !errors.Is(err, mempool.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	// A pending, unvalidated request does not authorise either.
	m.RequestValidation("a")
	if _, err := m.SubmitStar(ctx, "a", sampleStar); !errors.Is(err, mempool.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized with pending only, got %v", err)
	}
}

func TestSubmitStar_tokenExpired(t *testing.T) {
	m, clk := newMempool(t, nil)
	req, _ := m.RequestValidation("a")
	clk.Advance(10 * time.Second)
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); err != nil {
		t.Fatal(err)
	}

	clk.Advance(290 * time.Second)
	if _, err := m.SubmitStar(ctx, "a", sampleStar); !errors.Is(err, mempool.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized after window, got %v", err)
	}
	if _, ok := m.Validated("a"); ok {
		t.Error("expired token should be gone")
	}
}

func TestSubmitStar_tooLargeKeepsToken(t *testing.T) {
	m, _ := newMempool(t, nil)
	req, _ := m.RequestValidation("a")
	m.ValidateRequestByWallet("a", "sig:"+req.Message)

	big := sampleStar
	big.Story = strings.Repeat("x", star.MaxStoryBytes+1)
	if _, err := m.SubmitStar(ctx, "a", big); !errors.Is(err, star.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := m.SubmitStar(ctx, "a", sampleStar); err != nil {
		t.Errorf("token should survive a rejected payload: %v", err)
	}
}

func TestSubmitStar_ledgerFailureKeepsToken(t *testing.T) {
	boom := &ledger.StorageError{Op: "put", Height: 1, Err: errors.New("disk full")}
	m, _ := newMempool(t, failingAppender{err: boom})

	req, _ := m.RequestValidation("a")
	m.ValidateRequestByWallet("a", "sig:"+req.Message)

	_, err := m.SubmitStar(ctx, "a", sampleStar)
	var se *ledger.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if _, ok := m.Validated("a"); !ok {
		t.Error("token must not be consumed by a failed append")
	}
}

func TestSubmitStar_singleUseUnderConcurrency(t *testing.T) {
	m, _ := newMempool(t, nil)
	req, _ := m.RequestValidation("a")
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.SubmitStar(ctx, "a", sampleStar)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, mempool.ErrUnauthorized):
				bad++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || bad != n-1 {
		t.Errorf("expected exactly one success, got ok=%d unauthorized=%d", ok, bad)
	}
}

func TestTimers_expireEntries(t *testing.T) {
	l := ledger.New(store.NewMemoryStore(), zap.NewNop())
	m := mempool.New(mempool.Config{Window: 50 * time.Millisecond}, stubVerifier{}, l, zap.NewNop())
	defer m.Close()

	var events []string
	var mu sync.Mutex
	m.SetMetricsRecorder(func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	if _, err := m.RequestValidation("a"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().Pending != 0 {
		if time.Now().After(deadline) {
			t.Fatal("pending request was never expired by its timer")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "requested" || events[1] != "expired" {
		t.Errorf("unexpected events %v", events)
	}
}

func TestTimers_validateAfterExpiryReportsExpired(t *testing.T) {
	l := ledger.New(store.NewMemoryStore(), zap.NewNop())
	m := mempool.New(mempool.Config{Window: 50 * time.Millisecond}, stubVerifier{}, l, zap.NewNop())
	defer m.Close()

	req, err := m.RequestValidation("a")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().Pending != 0 {
		if time.Now().After(deadline) {
			t.Fatal("pending request was never expired by its timer")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); !errors.Is(err, mempool.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := m.ValidateRequestByWallet("a", "sig:"+req.Message); !errors.Is(err, mempool.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound after purge, got %v", err)
	}
}

func TestClose(t *testing.T) {
	m, _ := newMempool(t, nil)
	m.RequestValidation("a")
	m.Close()

	if s := m.Stats(); s.Pending != 0 || s.Validated != 0 {
		t.Errorf("Close should discard entries, got %+v", s)
	}
	if _, err := m.RequestValidation("b"); !errors.Is(err, mempool.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
