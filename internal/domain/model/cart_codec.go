package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceConversionError reports a stored price that is not a valid decimal.
// The entry is kept with a zero price.
type PriceConversionError struct {
	ProductID int64
	Raw       string
	Err       error
}

func (e *PriceConversionError) Error() string {
	return fmt.Sprintf("product %d: malformed stored price %q: %v", e.ProductID, e.Raw, e.Err)
}

func (e *PriceConversionError) Unwrap() error { return e.Err }

type cartWire struct {
	Revision  string                   `json:"revision"`
	Items     map[string]cartEntryWire `json:"items"`
	UpdatedAt time.Time                `json:"updated_at"`
}

type cartEntryWire struct {
	Quantity int64           `json:"quantity"`
	Price    json.RawMessage `json:"price"`
}

// EncodeCart serializes a cart for session storage. Prices are written as
// fixed two-decimal strings and invalid entries are rejected here, not on read.
func EncodeCart(c Cart) ([]byte, error) {
	w := cartWire{
		Revision:  c.Revision,
		Items:     make(map[string]cartEntryWire, len(c.Entries)),
		UpdatedAt: c.UpdatedAt,
	}
	for id, e := range c.Entries {
		if e.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", id, ErrInvalidQuantity)
		}
		if e.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("product %d: %w", id, ErrInvalidPrice)
		}
		price, err := json.Marshal(e.UnitPrice.StringFixed(2))
		if err != nil {
			return nil, err
		}
		w.Items[strconv.FormatInt(id, 10)] = cartEntryWire{Quantity: e.Quantity, Price: price}
	}
	return json.Marshal(w)
}

// DecodeCart parses stored cart data. A structurally broken payload is an
// error. Bad prices come back as warnings with the entry priced at zero;
// entries with unusable ids or quantities are dropped and also reported.
func DecodeCart(data []byte) (Cart, []error, error) {
	var w cartWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Cart{}, nil, fmt.Errorf("decode cart: %w", err)
	}

	c := Cart{
		Revision:  w.Revision,
		Entries:   make(map[int64]CartEntry, len(w.Items)),
		UpdatedAt: w.UpdatedAt,
	}
	if c.Revision == "" {
		c = NewCart()
		c.UpdatedAt = w.UpdatedAt
	}

	var warnings []error
	for key, item := range w.Items {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			warnings = append(warnings, fmt.Errorf("cart entry %q: invalid product id", key))
			continue
		}
		if item.Quantity <= 0 {
			warnings = append(warnings, fmt.Errorf("product %d: %w", id, ErrInvalidQuantity))
			continue
		}
		price, err := parseStoredPrice(item.Price)
		if err != nil {
			warnings = append(warnings, &PriceConversionError{ProductID: id, Raw: string(item.Price), Err: err})
			price = decimal.Zero
		}
		c.Entries[id] = CartEntry{ProductID: id, Quantity: item.Quantity, UnitPrice: price}
	}
	return c, warnings, nil
}

// parseStoredPrice accepts a JSON string or number.
func parseStoredPrice(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, ErrInvalidPrice
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, err
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}
