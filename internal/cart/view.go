package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"github.com/sweetshop/sweetshop-backend/pkg/types"
)

// CartView is the read model returned to clients: every line joined with the
// current catalog entry. Snapshots and totals come from the cart only.
type CartView struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Items      []LineView  `json:"items"`
	ItemCount  int         `json:"item_count"`
	TotalPrice types.Money `json:"total_price"`
}

// LineView is one cart line plus live catalog data. Missing is set when the
// referenced item was deleted from the catalog.
type LineView struct {
	ItemID            string       `json:"item_id"`
	Name              string       `json:"name,omitempty"`
	Category          string       `json:"category,omitempty"`
	ImageURL          string       `json:"image_url,omitempty"`
	Quantity          int          `json:"quantity"`
	UnitPrice         types.Money  `json:"unit_price"`
	LineTotal         types.Money  `json:"line_total"`
	CurrentPrice      *types.Money `json:"current_price,omitempty"`
	AvailableQuantity int          `json:"available_quantity"`
	Missing           bool         `json:"missing"`
}

// View returns the user's cart (created if absent) joined with catalog data.
func (s *service) View(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Describe(ctx, cart)
}

// Describe builds the read model for an already loaded cart without modifying it.
func (s *service) Describe(ctx context.Context, cart *models.Cart) (*CartView, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, line := range cart.Items {
		ids = append(ids, line.ItemID)
	}
	catalog, err := s.inventory.FindItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		ID:         cart.ID.String(),
		UserID:     cart.UserID.String(),
		Items:      make([]LineView, 0, len(cart.Items)),
		ItemCount:  len(cart.Items),
		TotalPrice: types.NewMoney(cart.Total()),
	}
	for _, line := range cart.Items {
		lv := LineView{
			ItemID:    line.ItemID.String(),
			Quantity:  line.Quantity,
			UnitPrice: types.NewMoney(line.UnitPrice),
			LineTotal: types.NewMoney(line.LineTotal()),
		}
		item, ok := catalog[line.ItemID]
		if !ok {
			lv.Missing = true
			view.Items = append(view.Items, lv)
			continue
		}
		current := types.NewMoney(item.UnitPrice)
		lv.Name = item.Name
		lv.Category = item.Category
		lv.ImageURL = item.ImageURL
		lv.CurrentPrice = &current
		lv.AvailableQuantity = item.AvailableQty
		view.Items = append(view.Items, lv)
	}
	return view, nil
}
