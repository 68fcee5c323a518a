package auth

import (
	"time"

	"github.com/dgnsrekt/tabmark/internal/types"
)

// StorageKey is the durable-store key holding the single active credential.
const StorageKey = "anthropic_auth"

const verifierKeyPrefix = "oauth_verifier:"

// Credential is the persisted credential record. Expires is epoch milliseconds.
type Credential struct {
	Type    types.CredentialKind `json:"type"`
	Key     string               `json:"key,omitempty"`
	Access  string               `json:"access,omitempty"`
	Refresh string               `json:"refresh,omitempty"`
	Expires int64                `json:"expires,omitempty"`
}

func (c Credential) expired(now time.Time) bool {
	return now.UnixMilli() >= c.Expires
}

// State is the externally visible credential state.
type State struct {
	Authenticated bool                 `json:"authenticated"`
	Kind          types.CredentialKind `json:"kind,omitempty"`
	Expired       bool                 `json:"expired,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
}

func verifierKey(flowID string) string {
	return verifierKeyPrefix + flowID
}
