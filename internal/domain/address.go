package domain

import "time"

// Address is a customer shipping address. The same shape is embedded into
// orders as an immutable snapshot, so later edits to the address book never
// rewrite where an already-placed order ships to.
type Address struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	Line       string    `json:"address"`
	Line2      string    `json:"address_2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"is_default,omitempty"`
	IsDeleted  bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// MissingFields returns the names of required address fields that are empty.
// The names match the JSON keys clients submit so the validation error reads
// back in their own vocabulary.
func (a *Address) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"phone", a.Phone},
		{"address", a.Line},
		{"city", a.City},
		{"state", a.State},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Snapshot returns a copy stripped of book-keeping fields, suitable for
// embedding into an order.
func (a *Address) Snapshot() *Address {
	return &Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Email:      a.Email,
		Line:       a.Line,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
