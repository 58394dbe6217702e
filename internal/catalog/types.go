package catalog

// Catalog file layout:
//
//	{"levels": [{"id": 1, "name": "Level 1", "available": true}, ...]}
type CatalogData struct {
	Levels []LevelItem `json:"levels"`
}

type LevelItem struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
}
