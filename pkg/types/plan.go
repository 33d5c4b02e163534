package types

// SubscriptionPlan is a catalog entry. Price is the display string ("$9.99")
// as the store localizes it.
type SubscriptionPlan struct {
	ID          string              `json:"id" mapstructure:"id"`
	Name        string              `json:"name" mapstructure:"name"`
	Description string              `json:"description" mapstructure:"description"`
	Price       string              `json:"price" mapstructure:"price"`
	Currency    string              `json:"currency" mapstructure:"currency"`
	Period      BillingPeriod       `json:"period" mapstructure:"period"`
	Features    []string            `json:"features" mapstructure:"features"`
	ProductIDs  map[Platform]string `json:"product_ids" mapstructure:"product_ids"`
	IsPopular   bool                `json:"is_popular" mapstructure:"is_popular"`
}

// ProductID returns the store product identifier of the plan on platform,
// or "" when the plan is not sold there.
func (p *SubscriptionPlan) ProductID(platform Platform) string {
	if p == nil {
		return ""
	}
	return p.ProductIDs[platform]
}

// Clone returns a deep copy so catalog refreshes never mutate shared entries.
func (p *SubscriptionPlan) Clone() *SubscriptionPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Features = append([]string(nil), p.Features...)
	cp.ProductIDs = make(map[Platform]string, len(p.ProductIDs))
	for k, v := range p.ProductIDs {
		cp.ProductIDs[k] = v
	}
	return &cp
}
