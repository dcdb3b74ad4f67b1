package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"

	"github.com/gorilla/websocket"
)

// OrderWorker subscribes to the private "orders" channel and translates
// push frames into lifecycle events for the dispatcher. Reconnection,
// backoff and the readiness gate come from BaseWSWorker; on reconnect
// Bitget replays nothing, so missed updates are recovered only by the
// next status change (terminal states are idempotent downstream).
type OrderWorker struct {
	base       *infra.BaseWSWorker
	signer     *Signer
	url        string
	dispatcher *engine.Dispatcher
	seq        *uint64

	// Cumulative fill per order, to turn accBaseVolume snapshots into
	// per-event deltas.
	acc map[string]quant.QtySats
}

// NewOrderWorker wires the private stream to a dispatcher.
func NewOrderWorker(cfg *infra.Config, d *engine.Dispatcher, seq *uint64) *OrderWorker {
	url := cfg.API.Bitget.WSURL
	if url == "" {
		url = PrivateWSURL
	}

	w := &OrderWorker{
		signer:     NewSigner(cfg.API.Bitget.AccessKey, cfg.API.Bitget.SecretKey, cfg.API.Bitget.Passphrase),
		url:        url,
		dispatcher: d,
		seq:        seq,
		acc:        make(map[string]quant.QtySats),
	}
	w.base = infra.NewBaseWSWorker(w)
	w.base.PingInterval = pingInterval
	w.base.ReadTimeout = readTimeout
	return w
}

func (w *OrderWorker) ID() string     { return "BITGET_ORDERS" }
func (w *OrderWorker) GetURL() string { return w.url }

// Start launches the supervised connection loop.
func (w *OrderWorker) Start(ctx context.Context) { w.base.Start(ctx) }

// Stop tears the connection down and waits for the loop to exit.
func (w *OrderWorker) Stop() { w.base.Stop() }

// WaitReady blocks until login and subscription have completed, so
// callers can hold submissions until events can actually arrive.
func (w *OrderWorker) WaitReady(ctx context.Context) error { return w.base.WaitReady(ctx) }

// OnConnect logs in and subscribes to the orders channel, reading the
// ack for each before returning. A rejected login or subscribe fails
// the connect, so the supervisor retries with backoff instead of
// reporting a ready stream that will never deliver events.
func (w *OrderWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	login := loginRequest{Op: "login", Args: []loginArg{w.signer.WSLogin()}}
	b, _ := json.Marshal(login)
	if err := w.base.Write(websocket.TextMessage, b); err != nil {
		return err
	}
	if err := w.awaitAck(conn, "login"); err != nil {
		return err
	}

	sub := subscribeRequest{Op: "subscribe", Args: []subscribeArg{
		{InstType: "SPOT", Channel: "orders", InstId: "default"},
	}}
	b, _ = json.Marshal(sub)
	if err := w.base.Write(websocket.TextMessage, b); err != nil {
		return err
	}
	return w.awaitAck(conn, "subscribe")
}

// awaitAck reads frames until the expected handshake ack arrives.
// Error frames fail the handshake; anything else (a pong) is skipped.
func (w *OrderWorker) awaitAck(conn *websocket.Conn, want string) error {
	deadline := time.Now().Add(handshakeTimeout)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%s ack: %w", want, err)
		}
		if string(msg) == "pong" {
			continue
		}

		var ack ordersPush
		if err := json.Unmarshal(msg, &ack); err != nil {
			continue
		}
		if ack.Event == "error" {
			return fmt.Errorf("%s rejected: code %s", want, ack.Code)
		}
		if ack.Event == want {
			if ack.Code != "" && ack.Code != "0" {
				return fmt.Errorf("%s rejected: code %s", want, ack.Code)
			}
			conn.SetReadDeadline(time.Time{})
			return nil
		}
	}
	return fmt.Errorf("%s ack: timed out", want)
}

func (w *OrderWorker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var push ordersPush
	if err := json.Unmarshal(msg, &push); err != nil {
		slog.Debug("BITGET_ORDERS: unparsable frame", slog.String("raw", string(msg)))
		return
	}

	if push.Event != "" {
		if push.Event == "error" {
			slog.Error("BITGET_ORDERS: channel error", slog.String("code", push.Code))
		}
		return
	}
	if push.Arg.Channel != "orders" || len(push.Data) == 0 {
		return
	}

	for _, data := range push.Data {
		w.translate(data)
	}
}

func (w *OrderWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return w.base.Write(websocket.TextMessage, []byte("ping"))
}

// translate maps one vendor order update to at most one event.
func (w *OrderWorker) translate(data orderData) {
	switch data.Status {
	case "live":
		w.enqueue(&event.OrderNewEvent{BaseEvent: w.baseEvent(data)})

	case "partially_filled":
		qty := w.fillDelta(data)
		if qty <= 0 {
			return
		}
		ev := event.AcquireOrderPartialFillEvent()
		ev.BaseEvent = w.baseEvent(data)
		ev.PriceMicros = quant.ToPriceMicrosStr(data.FillPrice)
		ev.QtySats = qty
		w.enqueue(ev)

	case "filled":
		qty := w.fillDelta(data)
		delete(w.acc, data.OrderID)
		ev := event.AcquireOrderFillEvent()
		ev.BaseEvent = w.baseEvent(data)
		ev.PriceMicros = quant.ToPriceMicrosStr(data.FillPrice)
		if qty > 0 {
			ev.QtySats = qty
		}
		w.enqueue(ev)

	case "cancelled":
		delete(w.acc, data.OrderID)
		w.enqueue(&event.OrderCancelEvent{BaseEvent: w.baseEvent(data)})

	default:
		slog.Debug("BITGET_ORDERS: unknown status",
			slog.String("order_id", data.OrderID),
			slog.String("status", data.Status))
	}
}

// fillDelta converts the cumulative accBaseVolume into the quantity of
// this specific fill, preferring the explicit baseVolume when present.
func (w *OrderWorker) fillDelta(data orderData) quant.QtySats {
	if data.BaseVolume != "" {
		qty := quant.ToQtySatsStr(data.BaseVolume)
		w.acc[data.OrderID] += qty
		return qty
	}

	acc := quant.ToQtySatsStr(data.AccBaseVolume)
	delta := acc - w.acc[data.OrderID]
	w.acc[data.OrderID] = acc
	return delta
}

func (w *OrderWorker) baseEvent(data orderData) event.BaseEvent {
	ts := quant.TimeStamp(time.Now().UnixMicro())
	if data.UTime != "" {
		if parsed, err := quant.ParseTimeStamp(data.UTime); err == nil {
			ts = parsed
		}
	}
	return event.BaseEvent{
		Seq:      quant.NextSeq(w.seq),
		Ts:       ts,
		BrokerID: data.OrderID,
	}
}

func (w *OrderWorker) enqueue(ev event.Event) {
	if !w.dispatcher.Enqueue(ev, false) {
		switch e := ev.(type) {
		case *event.OrderPartialFillEvent:
			event.ReleaseOrderPartialFillEvent(e)
		case *event.OrderFillEvent:
			event.ReleaseOrderFillEvent(e)
		}
	}
}
