package models

import "time"

// Area groups tasks and time blocks into a life area (e.g. "Work", "Health").
type Area struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToMap renders the Area as a generic document keyed "area".
func (a Area) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"area": map[string]interface{}{
			"id":         a.ID,
			"name":       a.Name,
			"color":      a.Color,
			"version":    a.Version,
			"created_at": a.CreatedAt,
			"updated_at": a.UpdatedAt,
		},
	}
}
