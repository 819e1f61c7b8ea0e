package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	SessionIDLength       = 16 // random bytes, hex encoded to 32 chars
	DefaultSessionTTLDays = 14

	AuthRequestExpiration         = 7 * 24 * time.Hour // pending requests expire after 7 days
	AuthRequestDedupWindow        = 1 * time.Hour      // reuse an unexpired pending request for same user+ip
	DefaultApprovalQuorum         = 2                  // distinct peer votes needed absent admin/self approval
	DefaultMaxAuthRequestsPerHour = 10                 // per user and per ip, two independent counters
	DefaultRateLimitBlock         = 1 * time.Hour      // cooldown once the limit trips
	RateLimitWindow               = 1 * time.Hour      // trailing window for request counting

	InviteTokenLength       = 32 // characters of the invite secret
	DefaultInviteExpiration = 14 * 24 * time.Hour
	VerificationCodeLength  = 8                // invite-link verification code
	MaintenanceInterval     = 15 * time.Minute // expiry sweep + snapshot cadence
	RateLimitBlockKeyPrefix = "rl:"
	HealthCheckServerAddr   = ":3001"
)
