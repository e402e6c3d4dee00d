// Package auth validates and issues the user tokens accepted by the HTTP API.
package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/storagebox/pkg/identity"
)

// Claims is the payload of a user token.
//
// The issuer and subject identify the caller as seen by the identity
// provider that minted the token. Attributes feed grant matching;
// capabilities unlock service-wide operations.
type Claims struct {
	jwt.RegisteredClaims

	// Capabilities lists service-wide rights, e.g. "create-fs".
	Capabilities []string `json:"cap,omitempty"`

	// Attributes maps an attribute name to the values the caller holds.
	Attributes map[string][]string `json:"attr,omitempty"`
}

// HasCapability returns true if the token carries the capability.
func (c *Claims) HasCapability(capability string) bool {
	return slices.Contains(c.Capabilities, capability)
}

// UserContext converts the claims into the caller identity used by the
// filesystem service.
func (c *Claims) UserContext() *identity.UserContext {
	return identity.New(
		c.Issuer,
		c.Subject,
		c.Attributes,
		c.HasCapability(identity.CapabilityCreateFilesystems),
	)
}
