package models

// Me represents the authenticated user's account summary.
type Me struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt Timestamp `json:"createdAt"`
}
