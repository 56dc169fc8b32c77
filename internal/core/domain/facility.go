package domain

// Facility is a physical storage location with a declared maximum capacity,
// measured in stock units.
type Facility struct {
	ID          int64
	Name        string
	Location    string
	MaxCapacity int
}

// DeletePolicy decides what happens to stock lines when their facility is deleted.
type DeletePolicy string

const (
	DeleteOrphan  DeletePolicy = "orphan"
	DeleteBlock   DeletePolicy = "block"
	DeleteCascade DeletePolicy = "cascade"
)

func (p DeletePolicy) Valid() bool {
	switch p {
	case DeleteOrphan, DeleteBlock, DeleteCascade:
		return true
	}
	return false
}
