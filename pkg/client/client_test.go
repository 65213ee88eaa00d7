package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/api/handler"
	"github.com/jmerrifield20/starnotary/internal/identity"
	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"github.com/jmerrifield20/starnotary/internal/signature"
	"github.com/jmerrifield20/starnotary/internal/store"
	"github.com/jmerrifield20/starnotary/pkg/client"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Test server ─────────────────────────────────────────────────────────

func notaryServer(t *testing.T, requireToken bool) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := ledger.New(store.NewMemoryStore(), zap.NewNop())
	if err := l.Init(ctx); err != nil {
		t.Fatal(err)
	}
	pool := mempool.New(mempool.Config{}, signature.BitcoinVerifier{}, l, zap.NewNop())
	tokens, _ := identity.NewTokenIssuer(nil, "")

	r := gin.New()
	g := r.Group("/")
	handler.NewValidationHandler(pool, tokens, zap.NewNop()).Register(g)
	handler.NewBlockHandler(pool, l, tokens, requireToken, zap.NewNop()).Register(g)
	handler.NewStarHandler(l, zap.NewNop()).Register(g)
	handler.NewChainHandler(l, nil, zap.NewNop()).Register(g)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		pool.Close()
	})
	return srv
}

var sky = client.Star{
	RA:    "16h 29m 1.0s",
	Dec:   "-26° 29' 24.9",
	Story: "Found star using https://www.google.com/sky/",
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestFullRegistration(t *testing.T) {
	srv := notaryServer(t, true)
	c := client.MustNew(srv.URL)

	key, _ := signature.GenerateKey()
	addr := signature.Address(key.PubKey(), true, signature.MainNet.PubKeyHashID)

	req, err := c.RequestValidation(ctx, addr)
	if err != nil {
		t.Fatalf("RequestValidation: %v", err)
	}
	if req.ValidationWindow <= 0 || req.WalletAddress != addr {
		t.Errorf("unexpected request %+v", req)
	}

	tok, err := c.ValidateSignature(ctx, addr, signature.SignMessage(key, req.Message, true))
	if err != nil {
		t.Fatalf("ValidateSignature: %v", err)
	}
	if !tok.RegisterStar || tok.RegistrationToken == "" {
		t.Errorf("unexpected token %+v", tok)
	}

	blk, err := c.SubmitStar(ctx, addr, sky)
	if err != nil {
		t.Fatalf("SubmitStar: %v", err)
	}
	owner, st, err := blk.StarBody()
	if err != nil {
		t.Fatal(err)
	}
	if owner != addr || st.StoryDecoded != sky.Story {
		t.Errorf("unexpected star body %q %+v", owner, st)
	}

	got, err := c.GetStarByHash(ctx, blk.Hash)
	if err != nil {
		t.Fatalf("GetStarByHash: %v", err)
	}
	if got.Height != blk.Height {
		t.Errorf("height: got %d, want %d", got.Height, blk.Height)
	}

	list, err := c.GetStarsByAddress(ctx, addr)
	if err != nil || len(list) != 1 {
		t.Errorf("GetStarsByAddress: %v, %d results", err, len(list))
	}

	info, err := c.Chain(ctx)
	if err != nil || info.Height != 1 || info.Hash != blk.Hash {
		t.Errorf("Chain: %+v, %v", info, err)
	}

	res, err := c.VerifyChain(ctx)
	if err != nil || !res.Valid {
		t.Errorf("VerifyChain: %+v, %v", res, err)
	}
	ok, err := c.ValidateBlock(ctx, 1)
	if err != nil || !ok {
		t.Errorf("ValidateBlock: %v, %v", ok, err)
	}
}

func TestGetBlock_genesis(t *testing.T) {
	srv := notaryServer(t, false)
	c := client.MustNew(srv.URL)

	blk, err := c.GetBlock(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if blk.PreviousBlockHash != "" {
		t.Error("genesis must not link backwards")
	}
	if _, _, err := blk.StarBody(); err == nil {
		t.Error("genesis should not decode as a star body")
	}
}

func TestErrors_status(t *testing.T) {
	srv := notaryServer(t, false)
	c := client.MustNew(srv.URL)

	_, err := c.GetBlock(ctx, 42)
	if !client.IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 APIError, got %v", err)
	}

	_, err = c.SubmitStar(ctx, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH", sky)
	if !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("expected 401 APIError, got %v", err)
	}

	_, err = c.ValidateSignature(ctx, "nobody", "sig")
	if !client.IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func TestNew_badURL(t *testing.T) {
	if _, err := client.New("://bad"); err == nil {
		t.Error("expected error for malformed base URL")
	}
}
