package glowbook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/glowbook/glowbook-go/cache"
)

const cartPath = "/cart"

// CartItem is one service held in the cart.
type CartItem struct {
	ServiceID string `json:"service_id"`
	SalonID   string `json:"salon_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price,omitempty"` // minor units, server-authoritative
}

// Cart is the customer's current cart.
type Cart struct {
	Items []CartItem `json:"items"`
	Total int        `json:"total"`
}

var cartTags = []cache.Tag{TagCart}

// GetCart returns the current cart, served from cache while fresh.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.getJSON(ctx, cartPath, nil, cartTags, cartPolicy, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// WatchCart runs fn with the decoded cart on every change, optimistic
// or authoritative. Cancel the subscription when the view goes away.
func (c *Client) WatchCart(fn func(Cart)) *cache.Subscription {
	return c.cache.Subscribe(cache.KeyFor(cartPath, nil), cartTags, cartPolicy, func(raw json.RawMessage) {
		var cart Cart
		if err := json.Unmarshal(raw, &cart); err == nil {
			fn(cart)
		}
	})
}

// AddCartItem puts a service in the cart. The cached cart shows the
// item immediately; the server's version, including authoritative
// pricing, replaces it on confirmation.
func (c *Client) AddCartItem(ctx context.Context, item CartItem) error {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	patch := patchCart(func(cart *Cart) {
		for i := range cart.Items {
			if cart.Items[i].ServiceID == item.ServiceID {
				cart.Items[i].Quantity += item.Quantity
				return
			}
		}
		cart.Items = append(cart.Items, item)
	})
	return c.mutateOptimistic(ctx, cache.KeyFor(cartPath, nil), cartTags, cartPolicy,
		patch, http.MethodPost, "/cart/items", item, nil)
}

// UpdateCartItem changes the quantity of a cart line.
func (c *Client) UpdateCartItem(ctx context.Context, serviceID string, quantity int) error {
	patch := patchCart(func(cart *Cart) {
		for i := range cart.Items {
			if cart.Items[i].ServiceID == serviceID {
				cart.Items[i].Quantity = quantity
			}
		}
	})
	return c.mutateOptimistic(ctx, cache.KeyFor(cartPath, nil), cartTags, cartPolicy,
		patch, http.MethodPut, "/cart/items/"+serviceID,
		map[string]int{"quantity": quantity}, nil)
}

// RemoveCartItem deletes a cart line.
func (c *Client) RemoveCartItem(ctx context.Context, serviceID string) error {
	patch := patchCart(func(cart *Cart) {
		items := cart.Items[:0]
		for _, it := range cart.Items {
			if it.ServiceID != serviceID {
				items = append(items, it)
			}
		}
		cart.Items = items
	})
	return c.mutateOptimistic(ctx, cache.KeyFor(cartPath, nil), cartTags, cartPolicy,
		patch, http.MethodDelete, "/cart/items/"+serviceID, nil, nil)
}

// Checkout turns the cart into bookings. Not optimistic: the outcome
// is a new server-side object, so the client waits for the authority.
func (c *Client) Checkout(ctx context.Context) ([]Booking, error) {
	var bookings []Booking
	err := c.mutate(ctx, http.MethodPost, "/cart/checkout", nil, &bookings,
		TagCart, TagCustomerBookings)
	return bookings, err
}

// patchCart lifts a typed cart edit into a raw cache patch. A nil or
// undecodable cached value patches as an empty cart.
func patchCart(edit func(*Cart)) func(json.RawMessage) json.RawMessage {
	return func(raw json.RawMessage) json.RawMessage {
		var cart Cart
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &cart)
		}
		edit(&cart)
		out, err := json.Marshal(cart)
		if err != nil {
			return raw
		}
		return out
	}
}
