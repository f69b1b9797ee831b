package model

import "time"

// Supported games.
const (
	GamePUBGMobile = "PUBG MOBILE"
	GameLastIsland = "LAST ISLAND OF SURVIVAL"
	GameStandoff2  = "STANDOFF2"
)

const (
	// StartingCredits is the balance granted on registration.
	StartingCredits = 20
	// RandomKeyBytes is the entropy of a generated key value (hex encoded).
	RandomKeyBytes = 8
	// ReferralTokenBytes is the entropy of a referral token (hex encoded).
	ReferralTokenBytes = 16
)

// Games lists the supported game names.
var Games = []string{GamePUBGMobile, GameLastIsland, GameStandoff2}

// DeviceLimits lists the allowed per-key device limits.
var DeviceLimits = []int{1, 2, 100}

// IsGame reports whether name is a supported game (exact, case-sensitive).
func IsGame(name string) bool {
	for _, g := range Games {
		if g == name {
			return true
		}
	}
	return false
}

type Reseller struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Credits      int64     `json:"credits"`
}

// Public returns a copy without the credential hash.
func (r Reseller) Public() Reseller {
	r.PasswordHash = ""
	return r
}

type Admin struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type Key struct {
	ID          string    `json:"id"`
	GameName    string    `json:"game_name"`
	KeyValue    string    `json:"key_value"`
	DeviceLimit int       `json:"device_limit"`
	ExpiryDays  int       `json:"expiry_days"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// ExpiresAt is createdAt plus expiryDays calendar days.
func (k Key) ExpiresAt() time.Time {
	return k.CreatedAt.AddDate(0, 0, k.ExpiryDays)
}

type VerificationEvent struct {
	ID         string    `json:"id"`
	KeyID      string    `json:"key_id"`
	GameName   string    `json:"game_name"`
	DeviceIP   string    `json:"device_ip"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type UsageEvent struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Success   bool      `json:"success"`
}

var gameSlugs = map[string]string{
	"pubg":       GamePUBGMobile,
	"lastisland": GameLastIsland,
	"standoff2":  GameStandoff2,
}

// GameBySlug resolves the short game name used in verification routes.
func GameBySlug(slug string) (string, bool) {
	name, ok := gameSlugs[slug]
	return name, ok
}
