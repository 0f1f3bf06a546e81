// Package recovery classifies failures, persists error reports, and drives
// typed recovery strategies behind per-service circuit breakers.
package recovery

import (
	"time"

	"github.com/tunegate/tunegate/id"
)

// Type categorizes a reported error.
type Type string

const (
	TypeConnection     Type = "connection"
	TypeAuthentication Type = "authentication"
	TypePayment        Type = "payment"
	TypeContent        Type = "content"
	TypeNFT            Type = "nft"
	TypeNetwork        Type = "network"
	TypeSystem         Type = "system"
)

// Severity scores a reported error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// UserImpact describes how the failure lands on the user.
type UserImpact string

const (
	ImpactNone     UserImpact = "none"
	ImpactMinor    UserImpact = "minor"
	ImpactMajor    UserImpact = "major"
	ImpactBlocking UserImpact = "blocking"
)

// Report is a persisted record of one caught failure. It is mutated only to
// bump Attempts and mark Resolved.
type Report struct {
	ID        id.ErrorReportID `json:"id"`
	Type      Type             `json:"type"`
	Severity  Severity         `json:"severity"`
	Message   string           `json:"message"`
	Service   string           `json:"service"`
	Operation string           `json:"operation"`
	Timestamp time.Time        `json:"timestamp"`
	Attempts  int              `json:"recovery_attempts"`
	Resolved  bool             `json:"resolved"`
	Impact    UserImpact       `json:"user_impact"`
}

// BreakerSnapshot is a point-in-time view of one service's circuit breaker.
type BreakerSnapshot struct {
	Service             string    `json:"service"`
	State               string    `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	IsOpen              bool      `json:"is_open"`
}
