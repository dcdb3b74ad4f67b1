package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"broker_go/internal/broker"
	"broker_go/internal/domain"
	"broker_go/internal/infra"

	"github.com/google/uuid"
)

// Client routes orders to Bitget spot over REST V2. It implements
// broker.Broker; lifecycle events arrive separately via OrderWorker.
type Client struct {
	signer     *Signer
	baseURL    string
	httpClient *http.Client

	// Bitget's cancel endpoint requires the symbol alongside the order
	// ID, so remember it per acknowledged order.
	mu      sync.Mutex
	symbols map[string]string
}

// NewClient creates a new Bitget REST client.
func NewClient(cfg *infra.Config) *Client {
	baseURL := cfg.API.Bitget.RestURL
	if baseURL == "" {
		baseURL = MainnetRestURL
	}

	return &Client{
		signer:     NewSigner(cfg.API.Bitget.AccessKey, cfg.API.Bitget.SecretKey, cfg.API.Bitget.Passphrase),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		symbols:    make(map[string]string),
	}
}

func (c *Client) Name() string { return "BITGET" }

// Submit places a spot order and returns the Bitget order ID.
func (c *Client) Submit(ctx context.Context, order domain.Order) (string, error) {
	req := placeOrderRequest{
		Symbol:    order.Symbol,
		Side:      strings.ToLower(string(order.Side)),
		OrderType: kindToOrderType(order.Kind),
		Force:     tifToForce(order.TIF),
		Size:      order.QtySats.String(),
		ClientOid: uuid.NewString(),
	}
	if order.Kind == domain.KindLimit {
		req.Price = order.LimitMicros.String()
	}

	var resp placeOrderResponse
	if err := c.post(ctx, "/api/v2/spot/trade/place-order", req, &resp); err != nil {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: "transport failure", Err: err}
	}
	if resp.Code != "00000" {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: fmt.Sprintf("code %s: %s", resp.Code, resp.Msg)}
	}
	if resp.Data.OrderID == "" {
		return "", &broker.SubmissionError{Broker: c.Name(), Reason: "empty order id in response"}
	}

	c.mu.Lock()
	c.symbols[resp.Data.OrderID] = order.Symbol
	c.mu.Unlock()
	return resp.Data.OrderID, nil
}

// Cancel requests cancellation of an open order.
func (c *Client) Cancel(ctx context.Context, brokerID string) error {
	c.mu.Lock()
	symbol := c.symbols[brokerID]
	c.mu.Unlock()
	if symbol == "" {
		return fmt.Errorf("unknown bitget order: %s", brokerID)
	}

	var resp cancelOrderResponse
	if err := c.post(ctx, "/api/v2/spot/trade/cancel-order", cancelOrderRequest{Symbol: symbol, OrderID: brokerID}, &resp); err != nil {
		return err
	}
	if resp.Code != "00000" {
		return fmt.Errorf("bitget cancel failed: code %s: %s", resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	infra.GetBitgetOrderLimiter().Wait()

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range c.signer.GenerateHeaders(http.MethodPost, path, "", string(payload)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitget HTTP %d: %s", resp.StatusCode, string(data))
	}

	return json.Unmarshal(data, out)
}

func kindToOrderType(k domain.Kind) string {
	if k == domain.KindMarket {
		return "market"
	}
	return "limit"
}

func tifToForce(tif domain.TimeInForce) string {
	switch tif {
	case domain.TIFImmediate:
		return "ioc"
	default:
		return "gtc"
	}
}
