package recovery

import (
	"strings"
	"time"

	"github.com/tunegate/tunegate/id"
)

// typePatterns maps error types to message substrings, checked in
// precedence order: connection, authentication, payment, content, nft,
// network, then system as the catch-all. A timeout classifies as network
// unless the message also names the connection itself.
var typePatterns = []struct {
	typ      Type
	patterns []string
}{
	{TypeConnection, []string{"connection", "connect", "disconnected", "refused", "broken pipe"}},
	{TypeAuthentication, []string{"auth", "unauthenticated", "unauthorized", "signature", "credential"}},
	{TypePayment, []string{"payment", "balance", "channel", "charge", "settle", "transaction"}},
	{TypeContent, []string{"content", "catalog", "gateway", "ipfs", "metadata"}},
	{TypeNFT, []string{"nft", "token", "contract", "ownership", "oracle"}},
	{TypeNetwork, []string{"network", "timeout", "timed out", "unreachable", "dns", "temporary"}},
}

// Classify builds a Report from a caught failure. Severity and user impact
// follow the type: connection and authentication failures block the user
// outright, payment failures are high, content and nft checks degrade
// gracefully, everything else is low-impact.
func Classify(err error, service, operation string) *Report {
	message := err.Error()
	typ := classifyType(message)

	return &Report{
		ID:        id.NewErrorReportID(),
		Type:      typ,
		Severity:  severityFor(typ),
		Message:   message,
		Service:   service,
		Operation: operation,
		Timestamp: time.Now().UTC(),
		Impact:    impactFor(typ),
	}
}

func classifyType(message string) Type {
	lower := strings.ToLower(message)
	for _, entry := range typePatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(lower, pattern) {
				return entry.typ
			}
		}
	}
	return TypeSystem
}

func severityFor(typ Type) Severity {
	switch typ {
	case TypeConnection, TypeAuthentication:
		return SeverityCritical
	case TypePayment:
		return SeverityHigh
	case TypeContent, TypeNFT:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func impactFor(typ Type) UserImpact {
	switch typ {
	case TypeConnection, TypeAuthentication:
		return ImpactBlocking
	case TypePayment:
		return ImpactMajor
	case TypeContent, TypeNFT:
		return ImpactMinor
	default:
		return ImpactNone
	}
}
