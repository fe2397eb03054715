// Package ghost reads tip aggregates from the on-chain indexer's GraphQL API.
// The indexer is populated by the chain itself; nothing here mutates state.
package ghost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Leaderboard windows the indexer aggregates for each user.
const (
	WindowDay   = "tipsReceivedDay"
	WindowWeek  = "tipsReceivedWeek"
	WindowMonth = "tipsReceivedMonth"
)

// Entry is one leaderboard row, keyed by on-chain address.
type Entry struct {
	UserAddress string
	TotalAmount string
}

type Client struct {
	url    string
	apiKey string
	httpc  *http.Client
	log    *slog.Logger
}

func New(url, apiKey string, log *slog.Logger) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Enabled reports whether an indexer endpoint is configured. Leaderboards and
// stats degrade to empty when it is not.
func (c *Client) Enabled() bool { return c != nil && c.url != "" }

type userRow struct {
	ID                  string `json:"id"`
	TipsReceivedAllTime string `json:"tipsReceivedAllTime"`
	TipsSentToday       string `json:"tipsSentToday"`
	Amount              string `json:"amount"`
}

type usersResponse struct {
	Data struct {
		Users struct {
			Items []userRow `json:"items"`
		} `json:"users"`
	} `json:"data"`
}

func (c *Client) query(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ghost-Api-Key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ghost returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, out)
}

// AllTimeReceived returns the lifetime base-unit amount tipped to an address.
func (c *Client) AllTimeReceived(ctx context.Context, address string) (string, error) {
	q := fmt.Sprintf(`query {
	  users(where: { id: %q }, orderBy: "id", orderDirection: "desc") {
	    items { id tipsReceivedAllTime }
	  }
	}`, address)

	var out usersResponse
	if err := c.query(ctx, q, &out); err != nil {
		return "", err
	}
	if len(out.Data.Users.Items) == 0 {
		return "0", nil
	}
	return out.Data.Users.Items[0].TipsReceivedAllTime, nil
}

// TipsSentToday returns the whole-taco count an address has sent today.
func (c *Client) TipsSentToday(ctx context.Context, address string) (string, error) {
	q := fmt.Sprintf(`query {
	  users(where: { id: %q }) {
	    items { id tipsSentToday }
	  }
	}`, address)

	var out usersResponse
	if err := c.query(ctx, q, &out); err != nil {
		return "", err
	}
	if len(out.Data.Users.Items) == 0 {
		return "0", nil
	}
	return out.Data.Users.Items[0].TipsSentToday, nil
}

// Leaderboard returns the top recipients for a window, largest first.
func (c *Client) Leaderboard(ctx context.Context, window string, limit int) ([]Entry, error) {
	q := fmt.Sprintf(`query {
	  users(orderBy: %q, orderDirection: "desc", limit: %d) {
	    items { id amount: %s }
	  }
	}`, window, limit, window)

	var out usersResponse
	if err := c.query(ctx, q, &out); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(out.Data.Users.Items))
	for _, row := range out.Data.Users.Items {
		entries = append(entries, Entry{UserAddress: row.ID, TotalAmount: row.Amount})
	}
	return entries, nil
}
