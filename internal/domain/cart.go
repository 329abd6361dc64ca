package domain

// Cart is a user's single in-progress collection of prospective purchases.
// TotalItems and TotalPrice are derived from the items and recomputed on
// every mutation; they are never accepted as caller input.
type Cart struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice int64      `json:"total_price"`
}

// CartItem is one line of a cart. At most one item exists per
// (cart, artwork) pair; adding the same artwork again merges quantities.
type CartItem struct {
	ID        string `json:"id"`
	CartID    string `json:"cart_id"`
	ArtworkID string `json:"artwork_id"`
	Quantity  int    `json:"quantity"`
}
