package service

import "github.com/tringuyen-psa/shopify-shop-sub001/internal/model"

// Actor identifies the authenticated caller of a service operation. Handlers
// build it from JWT claims; services enforce ownership with it.
type Actor struct {
	UserID  string
	Role    string
	ShopIDs []string
}

func (a *Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func (a *Actor) OwnsShop(shopID string) bool {
	for _, id := range a.ShopIDs {
		if id == shopID {
			return true
		}
	}
	return false
}
