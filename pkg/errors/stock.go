package errors

// StockDetails is attached to quantity and stock errors so clients can tell
// which item failed and by how much.
type StockDetails struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func InsufficientStock(itemID string, requested, available int) *Error {
	return New(CodeInsufficientStock, "insufficient stock").WithDetails(StockDetails{
		ItemID:    itemID,
		Requested: requested,
		Available: available,
	})
}

func ItemNotFound(itemID string) *Error {
	return New(CodeItemNotFound, "item not found").WithDetails(map[string]any{"item_id": itemID})
}

func ItemNotInCart(itemID string) *Error {
	return New(CodeItemNotInCart, "item not in cart").WithDetails(map[string]any{"item_id": itemID})
}

func InvalidQuantity(quantity int) *Error {
	return New(CodeInvalidQuantity, "invalid quantity").WithDetails(map[string]any{"quantity": quantity})
}
