package model

import "time"

// APIKey authenticates callers of the automation API. Tenants limits which
// tenants the key may act on; "*" grants all.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix,omitempty"`
	Tenants   []string   `json:"tenants"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// AllowsTenant reports whether the key may act on tenantID.
func (k *APIKey) AllowsTenant(tenantID string) bool {
	for _, t := range k.Tenants {
		if t == "*" || t == tenantID {
			return true
		}
	}
	return false
}
