package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must be a non-negative decimal")
)

// CartOwner identifies whose cart a request works on.
// An authenticated user wins over the anonymous session.
type CartOwner struct {
	UserID     int64
	SessionKey string
}

func (o CartOwner) IsAuthenticated() bool {
	return o.UserID > 0
}

// CartEntry keeps the price seen when the product was first added.
type CartEntry struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (e CartEntry) LineTotal() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(e.Quantity))
}

// Cart is a plain value. Stores load it at the start of a request and save it
// back at the end.
type Cart struct {
	// Revision changes on every Clear so an emptied cart never shares a
	// checkout fingerprint with its previous contents.
	Revision  string
	Entries   map[int64]CartEntry
	UpdatedAt time.Time
}

func NewCart() Cart {
	return Cart{
		Revision: uuid.NewString(),
		Entries:  map[int64]CartEntry{},
	}
}

// Add increments the quantity, or sets it when update is true.
// The unit price is snapshotted from the product only on first add.
func (c *Cart) Add(p Product, quantity int64, update bool) error {
	if update && quantity == 0 {
		c.Remove(p.ID)
		return nil
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if c.Entries == nil {
		c.Entries = map[int64]CartEntry{}
	}
	if c.Revision == "" {
		c.Revision = uuid.NewString()
	}

	e, ok := c.Entries[p.ID]
	if !ok {
		e = CartEntry{ProductID: p.ID, UnitPrice: p.EffectivePrice()}
	}
	if update {
		e.Quantity = quantity
	} else {
		e.Quantity += quantity
	}
	c.Entries[p.ID] = e
	c.UpdatedAt = time.Now()
	return nil
}

func (c *Cart) Remove(productID int64) {
	if _, ok := c.Entries[productID]; !ok {
		return
	}
	delete(c.Entries, productID)
	c.UpdatedAt = time.Now()
}

func (c *Cart) Clear() {
	c.Entries = map[int64]CartEntry{}
	c.Revision = uuid.NewString()
	c.UpdatedAt = time.Now()
}

func (c Cart) TotalItemCount() int64 {
	var n int64
	for _, e := range c.Entries {
		n += e.Quantity
	}
	return n
}

// TotalPrice sums the stored snapshots. It does not consult the catalog, so it
// can differ from the sum of iterated lines once catalog data changes.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.Entries {
		total = total.Add(e.LineTotal())
	}
	return total
}

func (c Cart) IsEmpty() bool {
	return c.TotalItemCount() == 0
}

// SortedEntries returns entries ordered by product id.
func (c Cart) SortedEntries() []CartEntry {
	out := make([]CartEntry, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b CartEntry) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})
	return out
}

// Fingerprint hashes the revision and contents. Equal carts in the same
// revision produce the same value.
func (c Cart) Fingerprint() string {
	var b strings.Builder
	b.WriteString(c.Revision)
	for _, e := range c.SortedEntries() {
		b.WriteString("|")
		b.WriteString(strconv.FormatInt(e.ProductID, 10))
		b.WriteString(":")
		b.WriteString(strconv.FormatInt(e.Quantity, 10))
		b.WriteString("@")
		b.WriteString(e.UnitPrice.StringFixed(2))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Merge folds other into c. Quantities add up and c keeps its own snapshot
// for products present in both.
func (c *Cart) Merge(other Cart) {
	if c.Entries == nil {
		c.Entries = map[int64]CartEntry{}
	}
	for id, oe := range other.Entries {
		e, ok := c.Entries[id]
		if !ok {
			c.Entries[id] = oe
			continue
		}
		e.Quantity += oe.Quantity
		c.Entries[id] = e
	}
	c.UpdatedAt = time.Now()
}

// StoredCart and StoredCartItem persist carts of authenticated users.
type StoredCart struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;uniqueIndex"`
	Revision  string    `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

func (StoredCart) TableName() string { return "user_carts" }

type StoredCartItem struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	CartID            int64           `gorm:"not null;uniqueIndex:idx_cart_product"`
	ProductID         int64           `gorm:"not null;uniqueIndex:idx_cart_product"`
	Quantity          int64           `gorm:"not null"`
	UnitPriceSnapshot decimal.Decimal `gorm:"type:numeric(10,2);not null;column:unit_price_snapshot"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime"`
}

func (StoredCartItem) TableName() string { return "user_cart_items" }
