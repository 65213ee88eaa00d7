package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ValidationRequest is returned by RequestValidation.
type ValidationRequest struct {
	WalletAddress    string `json:"walletAddress"`
	RequestTimeStamp int64  `json:"requestTimeStamp"`
	Message          string `json:"message"`
	ValidationWindow int64  `json:"validationWindow"`
}

// ValidationStatus is the status part of a ValidatedToken.
type ValidationStatus struct {
	Address          string `json:"address"`
	RequestTimeStamp int64  `json:"requestTimeStamp"`
	Message          string `json:"message"`
	ValidationWindow int64  `json:"validationWindow"`
	MessageSignature bool   `json:"messageSignature"`
}

// ValidatedToken is returned by ValidateSignature.
type ValidatedToken struct {
	RegisterStar      bool             `json:"registerStar"`
	Status            ValidationStatus `json:"status"`
	RegistrationToken string           `json:"registrationToken,omitempty"`
}

// Star is the payload of a registration.
type Star struct {
	RA           string `json:"ra"`
	Dec          string `json:"dec"`
	Mag          string `json:"mag,omitempty"`
	Cen          string `json:"cen,omitempty"`
	Story        string `json:"story"`
	StoryDecoded string `json:"storyDecoded,omitempty"`
}

// Block is a ledger block as served by the notary. Body is left raw because
// the genesis block carries a plain string.
type Block struct {
	Hash              string          `json:"hash"`
	Height            int64           `json:"height"`
	Body              json.RawMessage `json:"body"`
	Time              int64           `json:"time"`
	PreviousBlockHash string          `json:"previousBlockHash,omitempty"`
}

// StarBody decodes Body as a star registration. It fails for genesis.
func (b *Block) StarBody() (address string, s Star, err error) {
	var body struct {
		Address string `json:"address"`
		Star    Star   `json:"star"`
	}
	if err := json.Unmarshal(b.Body, &body); err != nil {
		return "", Star{}, fmt.Errorf("block %d has no star body: %w", b.Height, err)
	}
	return body.Address, body.Star, nil
}

// ChainInfo describes the chain tip.
type ChainInfo struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

// VerifyResult is returned by VerifyChain.
type VerifyResult struct {
	Valid         bool    `json:"valid"`
	FailedHeights []int64 `json:"failedHeights"`
}

// APIError is a non-2xx response from the notary.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notary returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == status
}

// Client talks to a starnotary server.
type Client struct {
	base       string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a registration token to star submissions.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8000".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetBearerToken replaces the registration token used by SubmitStar.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// RequestValidation posts to /requestValidation.
func (c *Client) RequestValidation(ctx context.Context, address string) (*ValidationRequest, error) {
	var out ValidationRequest
	if err := c.call(ctx, http.MethodPost, "/requestValidation", map[string]string{"address": address}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateSignature posts the signed message to /message-signature/validate.
// A returned registration token is remembered for SubmitStar.
func (c *Client) ValidateSignature(ctx context.Context, address, signature string) (*ValidatedToken, error) {
	var out ValidatedToken
	body := map[string]string{"address": address, "signature": signature}
	if err := c.call(ctx, http.MethodPost, "/message-signature/validate", body, &out); err != nil {
		return nil, err
	}
	if out.RegistrationToken != "" {
		c.SetBearerToken(out.RegistrationToken)
	}
	return &out, nil
}

// SubmitStar posts a star registration to /block.
func (c *Client) SubmitStar(ctx context.Context, address string, s Star) (*Block, error) {
	var out Block
	body := map[string]any{"address": address, "star": s}
	if err := c.call(ctx, http.MethodPost, "/block", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlock fetches the block at height.
func (c *Client) GetBlock(ctx context.Context, height int64) (*Block, error) {
	var out Block
	if err := c.call(ctx, http.MethodGet, "/block/"+strconv.FormatInt(height, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStarByHash fetches the block with the given hash.
func (c *Client) GetStarByHash(ctx context.Context, hash string) (*Block, error) {
	var out Block
	if err := c.call(ctx, http.MethodGet, "/stars/hash:"+url.PathEscape(hash), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStarsByAddress fetches every block registered by address.
func (c *Client) GetStarsByAddress(ctx context.Context, address string) ([]Block, error) {
	var out []Block
	if err := c.call(ctx, http.MethodGet, "/stars/address:"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chain returns the tip height and hash.
func (c *Client) Chain(ctx context.Context) (*ChainInfo, error) {
	var out ChainInfo
	if err := c.call(ctx, http.MethodGet, "/chain", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyChain asks the server to validate the whole chain.
func (c *Client) VerifyChain(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.call(ctx, http.MethodGet, "/chain/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateBlock asks the server to re-hash the block at height.
func (c *Client) ValidateBlock(ctx context.Context, height int64) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	path := "/chain/blocks/" + strconv.FormatInt(height, 10) + "/validate"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	c.mu.Lock()
	token := c.bearerToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(body)
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
