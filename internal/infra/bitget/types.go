package bitget

import "time"

const (
	MainnetRestURL = "https://api.bitget.com"
	PrivateWSURL   = "wss://ws.bitget.com/v2/ws/private"

	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	handshakeTimeout = 10 * time.Second
)

// placeOrderRequest is the body for POST /api/v2/spot/trade/place-order.
type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`      // buy | sell
	OrderType string `json:"orderType"` // limit | market
	Force     string `json:"force"`     // gtc | ioc | fok
	Price     string `json:"price,omitempty"`
	Size      string `json:"size"`
	ClientOid string `json:"clientOid,omitempty"`
}

type placeOrderResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		OrderID   string `json:"orderId"`
		ClientOid string `json:"clientOid"`
	} `json:"data"`
}

// cancelOrderRequest is the body for POST /api/v2/spot/trade/cancel-order.
type cancelOrderRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"orderId"`
}

type cancelOrderResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// loginRequest authenticates the private WebSocket.
type loginRequest struct {
	Op   string     `json:"op"`
	Args []loginArg `json:"args"`
}

type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// subscribeRequest subscribes to private channels after login.
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

// ordersPush is a push frame on the private "orders" channel.
type ordersPush struct {
	Event  string       `json:"event"` // login / subscribe acks carry this
	Code   string       `json:"code"`
	Action string       `json:"action"`
	Arg    subscribeArg `json:"arg"`
	Data   []orderData  `json:"data"`
	Ts     int64        `json:"ts"`
}

// orderData is one order update. Quantities and prices arrive as
// decimal strings; Rule #1 means they are parsed straight to
// fixed-point, never through float64.
type orderData struct {
	InstId        string `json:"instId"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"` // live | partially_filled | filled | cancelled
	FillPrice     string `json:"fillPrice"`
	BaseVolume    string `json:"baseVolume"`    // last fill quantity
	AccBaseVolume string `json:"accBaseVolume"` // cumulative filled quantity
	FillTime      string `json:"fillTime"`      // ms
	UTime         string `json:"uTime"`         // ms
}
