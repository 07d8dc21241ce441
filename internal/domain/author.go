package domain

// Author is a book author. Authors are created implicitly by the first book
// that names them and are never deleted.
type Author struct {
	Record
	Name string `json:"name"`
	Born *int   `json:"born,omitempty"`
}

// SetBorn sets the birth year and bumps UpdatedAt.
func (a *Author) SetBorn(year int) {
	a.Born = &year
	a.Touch()
}

// Clone returns a deep copy so callers can mutate without touching shared values.
func (a *Author) Clone() *Author {
	if a == nil {
		return nil
	}
	c := *a
	if a.Born != nil {
		born := *a.Born
		c.Born = &born
	}
	return &c
}
