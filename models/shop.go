package models

// ShopItem is one passive-income asset in the shop catalog.
type ShopItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Income      int64  `json:"income"`
	CooldownMin int    `json:"cooldown_min"`
	Description string `json:"description,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	// IncomeTemplate is the payout notification line, with {name} and
	// {income} tokens.
	IncomeTemplate string `json:"income_template,omitempty"`
}

// ShopCategory groups shop items under one thematic category.
type ShopCategory struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Tag   string              `json:"tag,omitempty"`
	Items map[string]ShopItem `json:"items"`

	// Discount is the legacy shop-wide daily discount field. It is kept
	// for document compatibility but never consulted; the per-ability
	// daily discount in Settings superseded it.
	Discount float64 `json:"discount,omitempty"`
}

// ShopCatalog is the externally authored passive-income shop. Order lists
// category ids in display order.
type ShopCatalog struct {
	Order      []string                 `json:"order,omitempty"`
	Categories map[string]*ShopCategory `json:"categories"`
}

// FindItem locates an item by id across all categories, returning the item
// and its category id.
func (s *ShopCatalog) FindItem(itemID string) (*ShopItem, string) {
	for catID, cat := range s.Categories {
		if item, ok := cat.Items[itemID]; ok {
			return &item, catID
		}
	}
	return nil, ""
}

// OrderedCategories returns the categories in display order, appending any
// that are not listed in Order.
func (s *ShopCatalog) OrderedCategories() []*ShopCategory {
	var out []*ShopCategory
	seen := make(map[string]bool)
	for _, id := range s.Order {
		if cat, ok := s.Categories[id]; ok {
			out = append(out, cat)
			seen[id] = true
		}
	}
	for id, cat := range s.Categories {
		if !seen[id] {
			out = append(out, cat)
		}
	}
	return out
}
