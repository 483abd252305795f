package models

// Placeholder values used when the agent does not supply a field. Records are
// always fully populated; a missing value is stored as a placeholder, never as
// an absent column.
const (
	PlaceholderText  = "N/A"
	PlaceholderPrice = 0.0
)

// Medicine represents one researched drug entry.
type Medicine struct {
	Name        string  `json:"name"`         // name of the medicine
	Brand       string  `json:"brand"`        // brand or manufacturer
	Price       float64 `json:"price"`        // price, 0.0 when unknown
	Dosage      string  `json:"dosage"`       // recommended adult dosage
	Form        string  `json:"form"`         // tablet, liquid, injection, ...
	OTC         bool    `json:"otc"`          // true if available over-the-counter
	Description string  `json:"description"`  // brief purpose description
	SideEffects string  `json:"side_effects"` // common side effects
	Category    string  `json:"category"`     // drug class
	DateAdded   string  `json:"date_added"`   // YYYY-MM-DD
}

// MedicineFieldNames lists the Medicine fields in declaration order. CSV export
// and the record table render columns in this order.
var MedicineFieldNames = []string{
	"name", "brand", "price", "dosage", "form", "otc",
	"description", "side_effects", "category", "date_added",
}

// Insight is a freeform analytical note recorded through the query relay's
// append_insight tool. There is no UI write path for insights.
type Insight struct {
	Insight     string `json:"insight"`
	Category    string `json:"category"`     // pricing, trends, availability, ...
	DateCreated string `json:"date_created"` // YYYY-MM-DD
}
