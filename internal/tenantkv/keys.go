package tenantkv

import (
	"fmt"
	"strings"
)

const (
	keyPrefix = "tenant"
	delimiter = ":"
)

// NamespacedKey maps a tenant and a logical key to the storage key
// "tenant:<tenantID>:<key>". It performs no validation.
func NamespacedKey(tenantID, key string) string {
	return tenantPrefix(tenantID) + key
}

// ValidateTenantID rejects tenant IDs that would make NamespacedKey ambiguous.
// With a colon-free tenant ID the first delimiter after the prefix always ends
// the tenant segment, so distinct (tenant, key) pairs never collide.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is empty", ErrInvalidTenant)
	}
	if strings.Contains(tenantID, delimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidTenant, tenantID, delimiter)
	}
	return nil
}

// LogicalKey strips the tenant prefix from a namespaced key. ok is false when
// the key does not belong to tenantID.
func LogicalKey(tenantID, namespaced string) (string, bool) {
	return strings.CutPrefix(namespaced, tenantPrefix(tenantID))
}

func tenantPrefix(tenantID string) string {
	return keyPrefix + delimiter + tenantID + delimiter
}

// tenantPattern builds the store glob for pattern inside tenantID's namespace.
// The tenant segment is escaped so it only ever matches itself.
func tenantPattern(tenantID, pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	return keyPrefix + delimiter + escapeGlob(tenantID) + delimiter + pattern
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '{', '}':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
