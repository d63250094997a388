package security

import "github.com/ethereum/go-ethereum/common"

// AlertType names a security alert.
type AlertType string

const (
	AlertDailyVolumeExceeded     AlertType = "DAILY_VOLUME_EXCEEDED"
	AlertSuspiciousLargeAmount   AlertType = "SUSPICIOUS_LARGE_AMOUNT"
	AlertCircuitBreakerTriggered AlertType = "CIRCUIT_BREAKER_TRIGGERED"
)

// Severity returns the fixed severity of the alert type, 1 lowest.
func (t AlertType) Severity() uint8 {
	switch t {
	case AlertDailyVolumeExceeded:
		return 2
	case AlertSuspiciousLargeAmount:
		return 3
	case AlertCircuitBreakerTriggered:
		return 5
	}
	return 1
}

// Alert is a security event raised by the pipeline. Alerts are telemetry; the
// pipeline never reads them back.
type Alert struct {
	User      common.Address
	Type      AlertType
	Severity  uint8
	Timestamp uint64
}

func (s *State) raise(user common.Address, t AlertType, now uint64) {
	a := Alert{User: user, Type: t, Severity: t.Severity(), Timestamp: now}
	log.Warn().
		Str("user", user.Hex()).
		Str("alert_type", string(t)).
		Uint8("severity", a.Severity).
		Uint64("timestamp", now).
		Msg("SecurityAlert")
	if s.alertHook != nil {
		s.alertHook(a)
	}
}
