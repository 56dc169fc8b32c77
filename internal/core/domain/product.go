package domain

// Product is a catalog entry keyed by SKU. SKU uniqueness is case-insensitive.
type Product struct {
	ID          int64
	SKU         string
	Name        string
	Description string
	Category    string
}
