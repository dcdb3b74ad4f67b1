package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"broker_go/internal/broker"
	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"
)

// MockRoundTripper allows us to mock HTTP responses
type MockRoundTripper struct {
	Func func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Func(req)
}

func testConfig() *infra.Config {
	cfg := &infra.Config{}
	cfg.API.Bitget.AccessKey = "test_access"
	cfg.API.Bitget.SecretKey = "test_secret"
	cfg.API.Bitget.Passphrase = "test_pass"
	return cfg
}

func TestClient_Submit(t *testing.T) {
	client := NewClient(testConfig())

	// Inject Mock Transport (white-box: same package)
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/api/v2/spot/trade/place-order" {
				t.Errorf("Unexpected path: %s", req.URL.Path)
			}
			if req.Method != "POST" {
				t.Errorf("Unexpected method: %s", req.Method)
			}
			if req.Header.Get("ACCESS-SIGN") == "" {
				t.Error("request not signed")
			}

			body, _ := io.ReadAll(req.Body)
			var placed placeOrderRequest
			if err := json.Unmarshal(body, &placed); err != nil {
				t.Fatalf("unparsable request body: %v", err)
			}
			if placed.Side != "buy" || placed.OrderType != "limit" || placed.Force != "gtc" {
				t.Errorf("wrong order fields: %+v", placed)
			}
			if placed.Price != "50000.000000" {
				t.Errorf("Price = %s, want 50000.000000", placed.Price)
			}
			if placed.Size != "0.00100000" {
				t.Errorf("Size = %s, want 0.00100000", placed.Size)
			}

			jsonResp := `{"code":"00000","msg":"success","data":{"orderId":"bg-123","clientOid":"test_oid"}}`
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(bytes.NewBufferString(jsonResp)),
				Header:     make(http.Header),
			}, nil
		},
	}

	order := domain.Order{
		Symbol:      "BTCUSDT",
		Side:        domain.SideBuy,
		Kind:        domain.KindLimit,
		TIF:         domain.TIFGoodTillCancel,
		LimitMicros: 50_000 * quant.PriceScale, // $50,000
		QtySats:     100_000,                   // 0.001 BTC
	}

	brokerID, err := client.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if brokerID != "bg-123" {
		t.Errorf("brokerID = %s, want bg-123", brokerID)
	}
}

func TestClient_SubmitVendorRejection(t *testing.T) {
	client := NewClient(testConfig())
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			jsonResp := `{"code":"43012","msg":"Insufficient balance"}`
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(bytes.NewBufferString(jsonResp)),
				Header:     make(http.Header),
			}, nil
		},
	}

	order := domain.Order{Symbol: "BTCUSDT", Side: domain.SideBuy, Kind: domain.KindMarket, QtySats: 100_000}
	_, err := client.Submit(context.Background(), order)
	if err == nil {
		t.Fatal("expected rejection")
	}

	var se *broker.SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *broker.SubmissionError", err)
	}
	if se.Broker != "BITGET" {
		t.Errorf("Broker = %s, want BITGET", se.Broker)
	}
}

func TestClient_CancelUsesRememberedSymbol(t *testing.T) {
	client := NewClient(testConfig())

	var canceled cancelOrderRequest
	calls := 0
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			calls++
			body, _ := io.ReadAll(req.Body)
			if req.URL.Path == "/api/v2/spot/trade/cancel-order" {
				json.Unmarshal(body, &canceled)
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(bytes.NewBufferString(`{"code":"00000","msg":"success"}`)),
					Header:     make(http.Header),
				}, nil
			}
			jsonResp := `{"code":"00000","msg":"success","data":{"orderId":"bg-9"}}`
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(bytes.NewBufferString(jsonResp)),
				Header:     make(http.Header),
			}, nil
		},
	}

	order := domain.Order{Symbol: "ETHUSDT", Side: domain.SideSell, Kind: domain.KindMarket, QtySats: quant.QtyScale}
	if _, err := client.Submit(context.Background(), order); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := client.Cancel(context.Background(), "bg-9"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if canceled.Symbol != "ETHUSDT" || canceled.OrderID != "bg-9" {
		t.Errorf("cancel request = %+v, want symbol ETHUSDT id bg-9", canceled)
	}
	if calls != 2 {
		t.Errorf("HTTP calls = %d, want 2", calls)
	}
}

func TestClient_CancelUnknownOrder(t *testing.T) {
	client := NewClient(testConfig())
	if err := client.Cancel(context.Background(), "never-submitted"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
