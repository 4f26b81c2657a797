package chat

// Profile holds the facts learned about the person in a session.
// PostpartumDate is the canonical timezone-qualified ISO string produced by the
// temporal extractor, empty when unknown.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	PostpartumDate string `json:"postpartumDate,omitempty"`
	APIKey         string `json:"-"`
}

// HasName reports whether a display name is known.
func (p Profile) HasName() bool { return p.Name != "" }

// HasDate reports whether a postpartum reference date is known.
func (p Profile) HasDate() bool { return p.PostpartumDate != "" }

// HasAPIKey reports whether the person supplied their own completion key.
func (p Profile) HasAPIKey() bool { return p.APIKey != "" }
