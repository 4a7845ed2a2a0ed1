package models

// Device is the API view of a registered push token.
type Device struct {
	TokenLast4 string     `json:"tokenLast4"`
	DeviceType string     `json:"deviceType"`
	IsActive   bool       `json:"isActive"`
	LastUsedAt *Timestamp `json:"lastUsedAt,omitempty"`
	CreatedAt  Timestamp  `json:"createdAt"`
	UpdatedAt  Timestamp  `json:"updatedAt"`
}

// DeviceRegisterRequest is the request body for registering a push token.
type DeviceRegisterRequest struct {
	Token      string `json:"token" validate:"required,min=16"`
	DeviceType string `json:"deviceType" validate:"required,oneof=ios android web"`
}

// DeviceRegisterResponse reports whether the token was newly created.
type DeviceRegisterResponse struct {
	Device  Device `json:"device"`
	Created bool   `json:"created"`
}

// DevicePingResponse reports the outcome of a token test-send.
type DevicePingResponse struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}
