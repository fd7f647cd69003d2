package redis

import "strings"

const namespace = "sf"

// Keyspace families.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyLock        = "lock"
)

// key joins non-empty parts under the storefront namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces a replay or dedup marker, e.g. sf:idempotency:checkout:<key>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(familyIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(familyRateLimit, scope)
}

// LockKey namespaces a distributed lock, e.g. sf:lock:cron:payout_dispatch.
func (c *Client) LockKey(parts ...string) string {
	return key(append([]string{familyLock}, parts...)...)
}
