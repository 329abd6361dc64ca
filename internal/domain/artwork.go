package domain

// Artwork is a listed piece for sale. Price is in minor currency units.
type Artwork struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Label       string `json:"label"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
}
