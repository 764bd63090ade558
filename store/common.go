package store

// RowStatus is the lifecycle status of a stored row.
type RowStatus string

const (
	// Normal is the status for active rows.
	Normal RowStatus = "NORMAL"
	// Archived is the status for rows hidden from listings.
	Archived RowStatus = "ARCHIVED"
)

func (r RowStatus) String() string {
	return string(r)
}
