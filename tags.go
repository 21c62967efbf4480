package glowbook

import (
	"time"

	"github.com/glowbook/glowbook-go/cache"
)

// Cache tags. Every query declares the tags its entries carry and every
// mutation declares the tags it invalidates; keeping the whole graph in
// one table is what keeps the two sides agreeing.
const (
	TagSalons           cache.Tag = "Salons"
	TagCustomerBookings cache.Tag = "CustomerBookings"
	TagCart             cache.Tag = "Cart"
	TagFavorites        cache.Tag = "Favorites"
	TagReviews          cache.Tag = "Reviews"
	TagVendorSalons     cache.Tag = "VendorSalons"
	TagLeaderboard      cache.Tag = "Leaderboard"
)

// Per-endpoint cache tuning. Latency-sensitive user state (cart,
// bookings, favorites) stays fresh for a short window and refetches on
// focus/reconnect; the salon catalog tolerates longer staleness.
var (
	salonsPolicy = cache.Policy{TTL: 5 * time.Minute, Retention: 600 * time.Second}

	reviewsPolicy = cache.Policy{TTL: 2 * time.Minute, Retention: 300 * time.Second}

	cartPolicy = cache.Policy{
		TTL:                30 * time.Second,
		Retention:          60 * time.Second,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
	}

	bookingsPolicy = cache.Policy{
		TTL:                60 * time.Second,
		Retention:          300 * time.Second,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
	}

	favoritesPolicy = cache.Policy{
		TTL:                60 * time.Second,
		Retention:          300 * time.Second,
		RefetchOnReconnect: true,
	}

	vendorPolicy = cache.Policy{TTL: 60 * time.Second, Retention: 300 * time.Second}

	leaderboardPolicy = cache.Policy{TTL: 2 * time.Minute, Retention: 300 * time.Second}

	signedURLPolicy = cache.Policy{TTL: 5 * time.Minute, Retention: 300 * time.Second}
)
