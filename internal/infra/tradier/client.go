// Package tradier implements a poll-only equity brokerage backend.
// Tradier has no push stream for order lifecycle in this integration,
// so the client satisfies broker.Pollable and a Reconciler turns its
// snapshots into events.
package tradier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"broker_go/internal/broker"
	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"

	"github.com/shopspring/decimal"
)

// Client talks to the Tradier brokerage REST API for one account.
type Client struct {
	baseURL    string
	token      string
	accountID  string
	httpClient *http.Client
}

// NewClient creates a Tradier REST client from config.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.API.Tradier.RestURL, "/"),
		token:      cfg.API.Tradier.Token,
		accountID:  cfg.API.Tradier.AccountID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "TRADIER" }

// Submit places an equity order. Tradier takes form-encoded bodies and
// returns a numeric order ID.
func (c *Client) Submit(ctx context.Context, order domain.Order) (string, error) {
	form := url.Values{}
	form.Set("class", "equity")
	form.Set("symbol", order.Symbol)
	form.Set("side", strings.ToLower(string(order.Side)))
	form.Set("quantity", qtyToShares(order.QtySats))
	form.Set("type", kindToType(order.Kind))
	form.Set("duration", tifToDuration(order.TIF))
	if order.Kind == domain.KindLimit {
		form.Set("price", microsToPrice(order.LimitMicros))
	}
	if order.Kind == domain.KindStop {
		form.Set("type", "stop")
		form.Set("stop", microsToPrice(order.StopMicros))
	}

	var resp createResponse
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/accounts/%s/orders", c.accountID), form, &resp)
	if err != nil {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: "transport failure", Err: err}
	}
	if len(resp.Errors.Error) > 0 {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: strings.Join(resp.Errors.Error, "; ")}
	}
	if status != http.StatusOK || resp.Order.ID == 0 {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: fmt.Sprintf("HTTP %d, no order id", status)}
	}

	return strconv.Itoa(resp.Order.ID), nil
}

// Cancel requests cancellation of an open order.
func (c *Client) Cancel(ctx context.Context, brokerID string) error {
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s", c.accountID, brokerID)
	status, err := c.do(ctx, http.MethodDelete, path, nil, &struct{}{})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("tradier cancel failed: HTTP %d", status)
	}
	return nil
}

// FetchSnapshot returns the account's complete current order list,
// satisfying broker.Pollable.
func (c *Client) FetchSnapshot(ctx context.Context) ([]broker.SnapshotRow, error) {
	var resp ordersResponse
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/orders", c.accountID), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("tradier orders fetch failed: HTTP %d", status)
	}

	rows := make([]broker.SnapshotRow, 0, len(resp.Orders.Order))
	for _, dto := range resp.Orders.Order {
		rows = append(rows, broker.SnapshotRow{
			BrokerID:       strconv.Itoa(dto.ID),
			Symbol:         dto.Symbol,
			Side:           mapSide(dto.Side),
			Kind:           mapKind(dto.Type),
			Status:         mapStatus(dto.Status),
			QtySats:        decimalToSats(dto.Quantity),
			FilledQtySats:  decimalToSats(dto.ExecQuantity),
			AvgPriceMicros: decimalToMicros(dto.AvgFillPrice),
		})
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) (int, error) {
	infra.GetTradierLimiter().Wait()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("tradier response parse: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// decimalToSats shifts a share quantity to QtySats (10^8).
func decimalToSats(d decimal.Decimal) quant.QtySats {
	return quant.QtySats(d.Shift(8).IntPart())
}

// decimalToMicros shifts a dollar price to PriceMicros (10^6).
func decimalToMicros(d decimal.Decimal) quant.PriceMicros {
	return quant.PriceMicros(d.Shift(6).IntPart())
}

// qtyToShares renders QtySats as a whole-share count; Tradier equities
// trade in integer shares.
func qtyToShares(q quant.QtySats) string {
	return decimal.New(int64(q), -8).String()
}

func microsToPrice(p quant.PriceMicros) string {
	return decimal.New(int64(p), -6).String()
}

func mapSide(s string) domain.Side {
	if strings.HasPrefix(s, "sell") {
		return domain.SideSell
	}
	return domain.SideBuy
}

func mapKind(t string) domain.Kind {
	switch t {
	case "market":
		return domain.KindMarket
	case "stop", "stop_limit":
		return domain.KindStop
	default:
		return domain.KindLimit
	}
}

func kindToType(k domain.Kind) string {
	if k == domain.KindMarket {
		return "market"
	}
	return "limit"
}

func tifToDuration(tif domain.TimeInForce) string {
	switch tif {
	case domain.TIFDay:
		return "day"
	default:
		return "gtc"
	}
}
