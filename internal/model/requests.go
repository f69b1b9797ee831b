package model

type RegisterRequest struct {
	Username      string `json:"username" validate:"required,max=64,excludesall=/\\"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	ReferralToken string `json:"referral_token" validate:"required"`
}

type AddCreditsRequest struct {
	Username string `json:"username" validate:"required"`
	Amount   int64  `json:"credits" validate:"gt=0"`
}

// IssueKeyRequest mints one key. An empty CustomKey asks for a random value.
type IssueKeyRequest struct {
	Username    string `json:"username" validate:"required"`
	GameName    string `json:"game_name" validate:"required,game"`
	CustomKey   string `json:"custom_key" validate:"omitempty,max=128"`
	DeviceLimit int    `json:"device_limit" validate:"oneof=1 2 100"`
	ExpiryDays  int    `json:"expiry_days" validate:"gte=1,lte=3650"`
}

// VerifyRequest is not restricted to known games: an unknown game simply
// matches no key.
type VerifyRequest struct {
	KeyValue string `json:"key" validate:"required"`
	GameName string `json:"game_name" validate:"required"`
	IP       string `json:"ip" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	Username  string `json:"username"`
	ExpiresIn int64  `json:"expires_in"`
}
