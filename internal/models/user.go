package models

type Profile struct {
	UserID         string         `json:"userId"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	DefaultAddress ProfileAddress `json:"defaultAddress"`
}

// Principal is the authenticated identity read from the request token.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}
