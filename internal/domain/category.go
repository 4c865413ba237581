package domain

import "time"

// Category is a named label attached to works.
// Membership is many-to-many and unique per (work, category).
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"` // "#RRGGBB"
	WorkCount int       `json:"work_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Built-in category names maintained as side effects of store writes.
const (
	CategoryDownloaded   = "Downloaded"
	CategoryFavorites    = "Favorites"
	CategoryRecentlyRead = "Recently Read"
	CategoryToRead       = "To Read"
	CategoryFinished     = "Finished"
	CategoryOngoing      = "Ongoing"
)

// BuiltinCategories are provisioned when the store opens.
var BuiltinCategories = []Category{
	{Name: CategoryDownloaded, Color: "#4CAF50"},
	{Name: CategoryFavorites, Color: "#FFC107"},
	{Name: CategoryToRead, Color: "#2196F3"},
	{Name: CategoryFinished, Color: "#9C27B0"},
	{Name: CategoryOngoing, Color: "#F44336"},
	{Name: CategoryRecentlyRead, Color: "#FF5722"},
}
