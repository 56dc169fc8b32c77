package domain

import "strings"

// CatalogKey identifies what a stock line holds. A positive ProductID refers to a
// catalog entry (normalized ledger); a zero ProductID means the line carries its
// own SKU and name (inline ledger).
type CatalogKey struct {
	ProductID int64
	SKU       string
}

func ProductKey(p Product) CatalogKey {
	return CatalogKey{ProductID: p.ID, SKU: p.SKU}
}

func InlineKey(sku string) CatalogKey {
	return CatalogKey{SKU: strings.TrimSpace(sku)}
}

func (k CatalogKey) Inline() bool {
	return k.ProductID == 0
}

// Equal reports whether two keys address the same stock. Keys from different
// ledgers never match.
func (k CatalogKey) Equal(other CatalogKey) bool {
	if k.Inline() != other.Inline() {
		return false
	}
	if !k.Inline() {
		return k.ProductID == other.ProductID
	}
	return strings.EqualFold(strings.TrimSpace(k.SKU), strings.TrimSpace(other.SKU))
}

// StockLine records how much of one catalog key a facility holds and where.
// At most one line exists per (FacilityID, Key).
type StockLine struct {
	ID              int64
	FacilityID      int64
	Key             CatalogKey
	Name            string
	Quantity        int
	StorageLocation *string
}

// Location returns the storage location or "" when unset.
func (l StockLine) Location() string {
	if l.StorageLocation == nil {
		return ""
	}
	return *l.StorageLocation
}

func StringPtr(s string) *string {
	return &s
}
