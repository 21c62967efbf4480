package glowbook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/glowbook/glowbook-go/cache"
)

const favoritesPath = "/favorites"

// Favorite marks a salon the customer saved.
type Favorite struct {
	SalonID   string `json:"salon_id"`
	SalonName string `json:"salon_name,omitempty"`
}

var favoriteTags = []cache.Tag{TagFavorites}

// ListFavorites returns the customer's saved salons.
func (c *Client) ListFavorites(ctx context.Context) ([]Favorite, error) {
	var favs []Favorite
	err := c.getJSON(ctx, favoritesPath, nil, favoriteTags, favoritesPolicy, &favs)
	return favs, err
}

// WatchFavorites runs fn with the decoded list on every change.
func (c *Client) WatchFavorites(fn func([]Favorite)) *cache.Subscription {
	return c.cache.Subscribe(cache.KeyFor(favoritesPath, nil), favoriteTags, favoritesPolicy, func(raw json.RawMessage) {
		var favs []Favorite
		if err := json.Unmarshal(raw, &favs); err == nil {
			fn(favs)
		}
	})
}

// AddFavorite saves a salon, shown immediately in the cached list.
func (c *Client) AddFavorite(ctx context.Context, salonID string) error {
	patch := patchFavorites(func(favs []Favorite) []Favorite {
		for _, f := range favs {
			if f.SalonID == salonID {
				return favs
			}
		}
		return append(favs, Favorite{SalonID: salonID})
	})
	return c.mutateOptimistic(ctx, cache.KeyFor(favoritesPath, nil), favoriteTags, favoritesPolicy,
		patch, http.MethodPost, favoritesPath, map[string]string{"salon_id": salonID}, nil)
}

// RemoveFavorite unsaves a salon.
func (c *Client) RemoveFavorite(ctx context.Context, salonID string) error {
	patch := patchFavorites(func(favs []Favorite) []Favorite {
		out := favs[:0]
		for _, f := range favs {
			if f.SalonID != salonID {
				out = append(out, f)
			}
		}
		return out
	})
	return c.mutateOptimistic(ctx, cache.KeyFor(favoritesPath, nil), favoriteTags, favoritesPolicy,
		patch, http.MethodDelete, favoritesPath+"/"+salonID, nil, nil)
}

func patchFavorites(edit func([]Favorite) []Favorite) func(json.RawMessage) json.RawMessage {
	return func(raw json.RawMessage) json.RawMessage {
		var favs []Favorite
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &favs)
		}
		out, err := json.Marshal(edit(favs))
		if err != nil {
			return raw
		}
		return out
	}
}
