package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least one")
)

type Item struct {
	ProductID string
	Quantity  int
}

// Cart holds a user's desired purchase quantities before checkout. One cart
// exists per user; it is created lazily and emptied, never deleted.
type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

func New(userID string) *Cart {
	return &Cart{
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Upsert sets the quantity for a product line. A duplicate product replaces
// the previous quantity rather than accumulating it.
func (c *Cart) Upsert(productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity})
	c.touch()
	return nil
}

// Remove drops the line for productID. Removing an absent product leaves the
// cart unchanged; it is not an error.
func (c *Cart) Remove(productID string) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch()
			return
		}
	}
}

// Clear empties the item list, keeping the cart itself.
func (c *Cart) Clear() {
	c.Items = nil
	c.touch()
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Quantity returns the quantity for productID, or zero when absent.
func (c *Cart) Quantity(productID string) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item(nil), c.Items...)
	return &clone
}
