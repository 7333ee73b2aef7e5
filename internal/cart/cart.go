// Package cart holds the in-memory line items collected before checkout.
package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrItemNotFound     = errors.New("cart item not found")
	ErrCurrencyMismatch = errors.New("cart items must share one currency")
)

// Item is a price snapshot of a purchasable variant. UnitPrice is in minor
// units of Currency.
type Item struct {
	VariantID    string
	ProductTitle string
	VariantTitle string
	UnitPrice    int64
	Currency     string
	Quantity     int
	// Options holds the selected option labels. Lines are keyed by variant
	// only, so a merge keeps the labels of the first line.
	Options []string
}

func (i Item) Total() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is not safe for concurrent use.
type Cart struct {
	items []Item
}

func New() *Cart {
	return &Cart{}
}

// Add appends item, or increases the quantity of the line that already
// holds the same variant. The existing price snapshot is kept on merge.
func (c *Cart) Add(item Item) error {
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	item.VariantID = strings.TrimSpace(item.VariantID)
	if item.VariantID == "" {
		return fmt.Errorf("variant id is required")
	}
	if currency := c.Currency(); currency != "" && !strings.EqualFold(currency, item.Currency) {
		return fmt.Errorf("%w: have %s, got %s", ErrCurrencyMismatch, currency, item.Currency)
	}

	if idx := c.indexOf(item.VariantID); idx >= 0 {
		c.items[idx].Quantity += item.Quantity
		return nil
	}

	item.Options = append([]string(nil), item.Options...)
	c.items = append(c.items, item)
	return nil
}

// UpdateQuantity sets the quantity for a variant. Zero or less removes it.
func (c *Cart) UpdateQuantity(variantID string, quantity int) error {
	idx := c.indexOf(variantID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.removeAt(idx)
		return nil
	}
	c.items[idx].Quantity = quantity
	return nil
}

func (c *Cart) Remove(variantID string) bool {
	idx := c.indexOf(variantID)
	if idx < 0 {
		return false
	}
	c.removeAt(idx)
	return true
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []Item {
	result := make([]Item, len(c.items))
	for i, item := range c.items {
		item.Options = append([]string(nil), item.Options...)
		result[i] = item
	}
	return result
}

// Subtotal is the sum of line totals in minor units.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.items {
		total += item.Total()
	}
	return total
}

func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) Currency() string {
	if len(c.items) == 0 {
		return ""
	}
	return c.items[0].Currency
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

func (c *Cart) Clear() {
	c.items = nil
}

func (c *Cart) indexOf(variantID string) int {
	variantID = strings.TrimSpace(variantID)
	for i, item := range c.items {
		if item.VariantID == variantID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.items = append(c.items[:idx], c.items[idx+1:]...)
}
