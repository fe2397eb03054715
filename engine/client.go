package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"tacotip-backend/config"
)

const (
	headerBackendWallet  = "x-backend-wallet-address"
	headerIdempotencyKey = "x-idempotency-key"
	headerFactoryAddress = "x-account-factory-address"
	headerAccountSalt    = "x-account-salt"
	headerAccountAddress = "x-account-address"

	readAttempts  = 3
	retryBaseWait = 250 * time.Millisecond
)

// Client talks to the transaction relay ("Engine"). It is the only component
// that writes on-chain state, and it does so exclusively through the relay.
type Client struct {
	baseURL             string
	accessToken         string
	chainID             int64
	accountFactory      string
	accountFactoryAdmin string
	backendWallet       string
	backendEOAWallet    string
	tipToken            string

	httpc *http.Client
	log   *slog.Logger
}

func New(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		baseURL:             cfg.EngineURL,
		accessToken:         cfg.EngineAccessToken,
		chainID:             cfg.ChainID,
		accountFactory:      cfg.AccountFactory,
		accountFactoryAdmin: cfg.AccountFactoryAdmin,
		backendWallet:       cfg.BackendWallet,
		backendEOAWallet:    cfg.BackendEOAWallet,
		tipToken:            cfg.TipToken,
		httpc:               &http.Client{Timeout: 15 * time.Second},
		log:                 log,
	}
}

// TipToken exposes the token contract address for call encoding.
func (c *Client) TipToken() string { return c.tipToken }

// accountSalt derives the per-team-and-user salt the account factory hashes
// into a deterministic address.
func accountSalt(teamID, userID string) string {
	return teamID + "-" + userID
}

func (c *Client) factoryURL(rest string) string {
	return fmt.Sprintf("%s/contract/%d/%s/account-factory/%s", c.baseURL, c.chainID, c.accountFactory, rest)
}

func (c *Client) tokenURL(rest string) string {
	return fmt.Sprintf("%s/contract/%d/%s/%s", c.baseURL, c.chainID, c.tipToken, rest)
}

// PredictAddress deterministically derives a user's smart-account address.
// Pure from the relay's perspective: same team and user always yield the same
// address.
func (c *Client) PredictAddress(ctx context.Context, userID, teamID string) (string, error) {
	q := url.Values{}
	q.Set("adminAddress", c.accountFactoryAdmin)
	q.Set("extraData", accountSalt(teamID, userID))

	var out struct {
		Result string `json:"result"`
	}
	if err := c.getJSON(ctx, c.factoryURL("predict-account-address")+"?"+q.Encode(), &out); err != nil {
		return "", &ResolutionError{Op: "predict-account-address", Err: err}
	}
	if out.Result == "" {
		return "", &ResolutionError{Op: "predict-account-address", Err: fmt.Errorf("empty result")}
	}
	return out.Result, nil
}

// IsDeployed reports whether the predicted account exists on-chain. Errors
// must not be read as "not deployed".
func (c *Client) IsDeployed(ctx context.Context, userID, teamID string) (bool, error) {
	q := url.Values{}
	q.Set("adminAddress", c.accountFactoryAdmin)
	q.Set("extraData", hexutil.Encode([]byte(accountSalt(teamID, userID))))

	var out struct {
		Result bool `json:"result"`
	}
	if err := c.getJSON(ctx, c.factoryURL("is-account-deployed")+"?"+q.Encode(), &out); err != nil {
		return false, &ResolutionError{Op: "is-account-deployed", Err: err}
	}
	return out.Result, nil
}

// DeployAccount asks the factory to create the account. The deployed address
// is returned optimistically; the deployment transaction itself is still
// queued when this returns. Duplicate attempts for the same tip event carry
// the same idempotency key and collapse relay-side.
func (c *Client) DeployAccount(ctx context.Context, userID, teamID, idempotencyKey string) (string, error) {
	salt := accountSalt(teamID, userID)
	body := map[string]string{
		"adminAddress": c.accountFactoryAdmin,
		"extraData":    salt,
	}
	headers := map[string]string{
		headerBackendWallet:  c.accountFactoryAdmin,
		headerIdempotencyKey: idempotencyKey,
		headerFactoryAddress: c.accountFactory,
		headerAccountSalt:    salt,
	}

	var out struct {
		Result struct {
			QueueID         string `json:"queueId"`
			DeployedAddress string `json:"deployedAddress"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, c.factoryURL("create-account"), headers, body, &out); err != nil {
		return "", &SubmissionError{Op: "create-account", Err: err}
	}
	return out.Result.DeployedAddress, nil
}

// IsRegistered reads the token contract's registration flag for an address.
func (c *Client) IsRegistered(ctx context.Context, address string) (bool, error) {
	q := url.Values{}
	q.Set("functionName", "isRegistered")
	q.Set("args", address)

	var out struct {
		Result bool `json:"result"`
	}
	if err := c.getJSON(ctx, c.tokenURL("read")+"?"+q.Encode(), &out); err != nil {
		return false, &ResolutionError{Op: "isRegistered", Err: err}
	}
	return out.Result, nil
}

// SendBatch submits the ordered call list as one atomic batch under a single
// idempotency key and returns the relay queue ID tracking it.
func (c *Client) SendBatch(ctx context.Context, calls []Call, idempotencyKey string) (string, error) {
	u := fmt.Sprintf("%s/backend-wallet/%d/send-transaction-batch", c.baseURL, c.chainID)
	headers := map[string]string{
		headerBackendWallet:  c.backendWallet,
		headerIdempotencyKey: idempotencyKey,
	}

	var out struct {
		Result struct {
			QueueIDs []string `json:"queueIds"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, u, headers, calls, &out); err != nil {
		return "", &SubmissionError{Op: "send-transaction-batch", Err: err}
	}
	if len(out.Result.QueueIDs) == 0 {
		return "", &SubmissionError{Op: "send-transaction-batch", Err: fmt.Errorf("relay returned no queue IDs")}
	}
	return out.Result.QueueIDs[0], nil
}

// Transfer moves amountWei of the tip token from the user's smart account to
// an arbitrary destination (the withdrawal path).
func (c *Client) Transfer(ctx context.Context, senderAddress, toAddress, amountWei, idempotencyKey string) (string, error) {
	headers := map[string]string{
		headerBackendWallet:  c.backendEOAWallet,
		headerAccountAddress: senderAddress,
		headerIdempotencyKey: idempotencyKey,
	}
	body := map[string]string{
		"toAddress": toAddress,
		"amount":    amountWei,
	}

	var out struct {
		Result struct {
			QueueID string `json:"queueId"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, c.tokenURL("erc20/transfer"), headers, body, &out); err != nil {
		return "", &SubmissionError{Op: "erc20-transfer", Err: err}
	}
	return out.Result.QueueID, nil
}

// Balance describes a token balance as the relay reports it.
type Balance struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     string `json:"decimals"`
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue"`
}

// TokenBalance reads the tip-token balance of an address.
func (c *Client) TokenBalance(ctx context.Context, address string) (Balance, error) {
	q := url.Values{}
	q.Set("wallet_address", address)

	var out struct {
		Result Balance `json:"result"`
	}
	if err := c.getJSON(ctx, c.tokenURL("erc20/balance-of")+"?"+q.Encode(), &out); err != nil {
		return Balance{}, &ResolutionError{Op: "erc20-balance-of", Err: err}
	}
	return out.Result, nil
}

// AccountAdmins lists the admin signers of a smart account.
func (c *Client) AccountAdmins(ctx context.Context, address string) ([]string, error) {
	u := fmt.Sprintf("%s/contract/%d/%s/account/admins/get-all", c.baseURL, c.chainID, address)

	var out struct {
		Result []string `json:"result"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, &ResolutionError{Op: "account-admins", Err: err}
	}
	return out.Result, nil
}

// GrantAccountAdmin adds an admin signer to a smart account.
func (c *Client) GrantAccountAdmin(ctx context.Context, address, adminAddress, idempotencyKey string) (string, error) {
	u := fmt.Sprintf("%s/contract/%d/%s/account/admins/grant", c.baseURL, c.chainID, address)
	headers := map[string]string{
		headerBackendWallet:  c.backendEOAWallet,
		headerIdempotencyKey: idempotencyKey,
	}
	body := map[string]string{"signerAddress": adminAddress}

	var out struct {
		Result struct {
			QueueID string `json:"queueId"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, u, headers, body, &out); err != nil {
		return "", &SubmissionError{Op: "account-admins-grant", Err: err}
	}
	return out.Result.QueueID, nil
}

// getJSON performs an authenticated GET with bounded retry. Reads are
// idempotent, so transient failures get up to three jittered attempts.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait<<(attempt-1) + time.Duration(rand.Int63n(int64(retryBaseWait)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		if lastErr = c.do(req, out); lastErr == nil {
			return nil
		}
		c.log.Warn("engine read failed", "url", rawURL, "attempt", attempt+1, "err", lastErr)
	}
	return lastErr
}

// postJSON performs an authenticated POST. State-changing calls are
// single-attempt; idempotency keys, not retries, protect against duplicates.
func (c *Client) postJSON(ctx context.Context, rawURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("malformed engine response: %w", err)
	}
	return nil
}
