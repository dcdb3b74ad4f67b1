package tradier

import (
	"encoding/json"

	"broker_go/internal/domain"

	"github.com/shopspring/decimal"
)

// orderDTO is one order as Tradier's REST API reports it. Prices and
// quantities arrive as JSON numbers; they are decoded through
// decimal.Decimal and shifted to fixed-point, never through float64.
type orderDTO struct {
	ID                int             `json:"id"`
	Type              string          `json:"type"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	Status            string          `json:"status"`
	Duration          string          `json:"duration"`
	AvgFillPrice      decimal.Decimal `json:"avg_fill_price"`
	ExecQuantity      decimal.Decimal `json:"exec_quantity"`
	LastFillPrice     decimal.Decimal `json:"last_fill_price"`
	LastFillQuantity  decimal.Decimal `json:"last_fill_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	Class             string          `json:"class"`
}

// ordersResponse wraps GET /v1/accounts/{id}/orders. Tradier returns
// "order" as an object for one order and an array for several, and the
// literal string "null" when the account has none.
type ordersResponse struct {
	Orders ordersField `json:"orders"`
}

type ordersField struct {
	Order []orderDTO
}

func (f *ordersField) UnmarshalJSON(data []byte) error {
	if string(data) == `"null"` || string(data) == "null" {
		return nil
	}

	var multi struct {
		Order json.RawMessage `json:"order"`
	}
	if err := json.Unmarshal(data, &multi); err != nil {
		return err
	}
	if len(multi.Order) == 0 {
		return nil
	}

	if multi.Order[0] == '[' {
		return json.Unmarshal(multi.Order, &f.Order)
	}
	var single orderDTO
	if err := json.Unmarshal(multi.Order, &single); err != nil {
		return err
	}
	f.Order = []orderDTO{single}
	return nil
}

// createResponse wraps POST /v1/accounts/{id}/orders.
type createResponse struct {
	Order struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
	Errors struct {
		Error []string `json:"error"`
	} `json:"errors"`
}

func (c *createResponse) UnmarshalJSON(data []byte) error {
	// The errors payload also uses object-or-array polymorphism.
	type alias struct {
		Order struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		Errors struct {
			Error json.RawMessage `json:"error"`
		} `json:"errors"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Order = a.Order

	if len(a.Errors.Error) == 0 {
		return nil
	}
	if a.Errors.Error[0] == '[' {
		return json.Unmarshal(a.Errors.Error, &c.Errors.Error)
	}
	var single string
	if err := json.Unmarshal(a.Errors.Error, &single); err != nil {
		return err
	}
	c.Errors.Error = []string{single}
	return nil
}

// mapStatus translates a Tradier order status to the local lifecycle.
func mapStatus(s string) domain.Status {
	switch s {
	case "pending", "submitted":
		return domain.StatusSubmitted
	case "open":
		return domain.StatusNew
	case "partially_filled":
		return domain.StatusPartiallyFilled
	case "filled":
		return domain.StatusFilled
	case "canceled", "expired":
		return domain.StatusCanceled
	case "rejected", "error":
		return domain.StatusRejected
	default:
		return domain.StatusSubmitted
	}
}
