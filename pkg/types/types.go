package types

import (
	"time"
)

// Config holds all configuration values for the mail gateway
type Config struct {
	Host string
	Port string

	BrevoAPIKey  string
	BrevoURL     string
	BrevoListID  int
	BrevoTimeout time.Duration
	BrevoRPS     int

	AllowedOrigin     string
	RateLimitWindow   time.Duration
	RateLimitMax      int
	TrustProxyHeaders bool

	DatabaseDSN string
}

// ErrorResponse is the JSON body of every non-2xx response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

const (
	SignupSubscribed = "subscribed"
	SignupFailed     = "failed"
)

// Signup is one submission that reached the mailing-list provider
type Signup struct {
	ID         string     `gorm:"primaryKey"`
	Email      string     `gorm:"not null;index"`
	ListIDs    Int64Slice `gorm:"type:text"`
	ClientAddr string
	Status     string    `gorm:"not null;index"`
	Error      string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
}
