package models

type AddressType string

const (
	AddressHome   AddressType = "home"
	AddressOffice AddressType = "office"
	AddressOther  AddressType = "other"
)

func (t AddressType) Valid() bool {
	return t == AddressHome || t == AddressOffice || t == AddressOther
}

// SavedAddress belongs to the user profile. Orders copy it at checkout.
type SavedAddress struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Name       string      `json:"name" binding:"required"`
	Phone      string      `json:"phone" binding:"required,bdphone"`
	Line1      string      `json:"line1" binding:"required"`
	Line2      string      `json:"line2,omitempty"`
	City       string      `json:"city" binding:"required"`
	Region     string      `json:"region" binding:"required"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country,omitempty"`
	Type       AddressType `json:"type"`
	IsDefault  bool        `json:"isDefault"`
}

// ProfileAddress is the default checkout address kept on the profile.
type ProfileAddress struct {
	Division string `json:"division"`
	District string `json:"district"`
	Address  string `json:"address"`
}

func (a ProfileAddress) IsZero() bool {
	return a.Division == "" && a.District == "" && a.Address == ""
}
