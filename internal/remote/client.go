package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
)

var (
	// ErrNotAuthenticated means no credential was available. Guest carts
	// live locally, so callers treat this as "nothing to reconcile".
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSyncFailed wraps every network or server failure against the
	// remote cart. Local state stays authoritative when it comes back.
	ErrSyncFailed = errors.New("remote cart sync failed")
)

// Cart is the server-side cart representation: line items plus the
// bakery that owns them.
type Cart struct {
	BakeryID string            `json:"bakeryId"`
	Items    []domain.CartItem `json:"items"`
}

type putCartRequest struct {
	BakeryID  string            `json:"bakeryId"`
	Items     []domain.CartItem `json:"items"`
	OrderNote string            `json:"orderNote,omitempty"`
}

// Client talks to the remote cart API: GET/PUT/DELETE over a single
// /cart resource. PUT always carries the entire desired item list, never
// a patch; that full-replace contract is what makes delete-then-rebuild
// conflict resolution safe.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

func NewClient(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:    "remote-cart",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

func (c *Client) do(ctx context.Context, method, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/cart", body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSyncFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return resp, nil
}

// Fetch retrieves the authoritative server cart. A missing or rejected
// credential is reported as ErrNotAuthenticated; a cart the server does
// not know about comes back empty, not as an error.
func (c *Client) Fetch(ctx context.Context, token string) (*Cart, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	resp, err := c.do(ctx, http.MethodGet, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var cart Cart
		if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
			return nil, fmt.Errorf("%w: decode cart: %v", ErrSyncFailed, err)
		}
		return &cart, nil
	case http.StatusUnauthorized:
		return nil, ErrNotAuthenticated
	case http.StatusNotFound:
		return &Cart{}, nil
	default:
		return nil, fmt.Errorf("%w: fetch returned status %d", ErrSyncFailed, resp.StatusCode)
	}
}

// Replace overwrites the remote cart with the full desired item list.
// Lines sharing an item ID are merged (quantities summed) before the
// PUT so the server never sees duplicate product entries.
func (c *Client) Replace(ctx context.Context, token string, items []domain.CartItem) error {
	if token == "" {
		return ErrNotAuthenticated
	}

	merged := MergeLines(items)
	payload := putCartRequest{Items: merged}
	if len(merged) > 0 {
		payload.BakeryID = merged[0].BakeryID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal cart: %v", ErrSyncFailed, err)
	}

	resp, err := c.do(ctx, http.MethodPut, token, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: replace returned status %d", ErrSyncFailed, resp.StatusCode)
	}
	return nil
}

// Clear deletes the remote cart. Deleting a cart the server does not
// hold is a success, which lets callers retry without bookkeeping.
func (c *Client) Clear(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotAuthenticated
	}

	resp, err := c.do(ctx, http.MethodDelete, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrNotAuthenticated
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: delete returned status %d", ErrSyncFailed, resp.StatusCode)
	}
	return nil
}

// Reconcile rebuilds the remote cart from local intent: delete the whole
// thing, then PUT the local lines. Used when the remote holds another
// bakery's items and a merge would corrupt both.
func (c *Client) Reconcile(ctx context.Context, token string, items []domain.CartItem) error {
	if err := c.Clear(ctx, token); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return c.Replace(ctx, token, items)
}
