package transport

// AuthLoginRequest registers a device for an owner's list.
type AuthLoginRequest struct {
	OwnerID  string `json:"owner_id"`
	DeviceID string `json:"device_id"`
	TTL      int    `json:"ttl_seconds"`
}

type RefreshRequest struct {
	SessionID string `json:"session_id"`
	TTL       int    `json:"ttl_seconds"`
}

// LoginResponse carries the bearer token used by list routes.
type LoginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// ListRequest uploads a whole list.
type ListRequest struct {
	List []Element `json:"list"`
}

// ElementRequest carries a single record.
type ElementRequest struct {
	Element Element `json:"element"`
}
