// Package commitments is the client of the Pedersen commitment backend.
// Deposits hide their amounts behind commitments: a deposit succeeds iff
// the backend returns a well-formed commitment artifact. The backend is
// otherwise opaque to this engine.
package commitments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenlend/zenlend/pkg/retrier"
)

const (
	defaultTimeout = 15 * time.Second
)

// Commitment is the artifact returned by the backend for a deposit.
type Commitment struct {
	Commitment string          `json:"commitment"`
	Proof      json.RawMessage `json:"proof,omitempty"`
}

// Client talks to the commitment HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retrier.Retrier
	logger     *zap.Logger
}

// NewClient creates a commitment client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		retrier:    retrier.New(retrier.WithAttempts(3), retrier.WithBaseDelay(300*time.Millisecond)),
		logger:     logger,
	}
}

type generateRequest struct {
	Amount     float64 `json:"amount"`
	PrivateKey string  `json:"private_key"`
}

type generateResponse struct {
	Commitment string          `json:"commitment"`
	Proof      json.RawMessage `json:"proof"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

// Generate requests a commitment for the deposit amount. The secret is
// forwarded to the backend and never logged here.
func (c *Client) Generate(ctx context.Context, amount decimal.Decimal, secret string) (Commitment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Commitment{}, errors.New("commitment amount must be greater than zero")
	}
	if len(secret) < 8 {
		return Commitment{}, errors.New("commitment secret must be at least 8 characters")
	}

	amountFloat, _ := amount.Float64()
	body, err := json.Marshal(generateRequest{Amount: amountFloat, PrivateKey: secret})
	if err != nil {
		return Commitment{}, errors.Wrap(err, "marshal commitment request")
	}

	result, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (generateResponse, error) {
		return c.postGenerate(ctx, body)
	})
	if err != nil {
		return Commitment{}, err
	}

	if !result.Success || result.Commitment == "" {
		return Commitment{}, errors.Errorf("commitment backend rejected request: %s", result.Error)
	}

	c.logger.Debug("commitment generated",
		zap.String("amount", amount.String()),
		zap.String("commitment_prefix", prefix(result.Commitment, 16)))

	return Commitment{Commitment: result.Commitment, Proof: result.Proof}, nil
}

func (c *Client) postGenerate(ctx context.Context, body []byte) (generateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-commitment", bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, errors.Wrap(err, "build commitment request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return generateResponse{}, errors.Wrap(err, "commitment request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return generateResponse{}, errors.Errorf("commitment backend returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return generateResponse{}, errors.Wrap(err, "decode commitment response")
	}
	return result, nil
}

// Healthy reports whether the backend answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
