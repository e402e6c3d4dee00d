// Package identity describes the caller of a filesystem operation as
// asserted by an upstream identity provider.
package identity

import (
	"github.com/marmos91/storagebox/pkg/metadata"
)

// SubjectAttribute is the implicit attribute every caller carries, holding
// their subject under their issuer.
const SubjectAttribute = "_subject"

// CapabilityCreateFilesystems is the token capability that allows creating
// filesystems.
const CapabilityCreateFilesystems = "create-fs"

// Identification names a caller.
type Identification struct {
	Issuer  string `json:"issuer"`
	Subject string `json:"subject"`
}

// UserContext is the validated caller of an operation.
type UserContext struct {
	Identification       Identification        `json:"identification"`
	Attributes           metadata.AttributeSet `json:"attributes"`
	CanCreateFilesystems bool                  `json:"canCreateFilesystems"`
}

// New builds a UserContext. attrs may be nil.
func New(issuer, subject string, attrs map[string][]string, canCreateFilesystems bool) *UserContext {
	return &UserContext{
		Identification:       Identification{Issuer: issuer, Subject: subject},
		Attributes:           metadata.AttributeSet{Issuer: issuer, Values: attrs},
		CanCreateFilesystems: canCreateFilesystems,
	}
}

// EffectiveAttributes returns the caller's attributes plus the implicit
// subject attribute. Grants are always matched against this set.
func (u *UserContext) EffectiveAttributes() metadata.AttributeSet {
	attrs := u.Attributes
	if attrs.Issuer == "" {
		attrs.Issuer = u.Identification.Issuer
	}
	if attrs.Issuer != u.Identification.Issuer {
		// Attributes asserted by a different issuer cannot be combined with
		// the subject; keep only the subject.
		return metadata.AttributeSet{Issuer: u.Identification.Issuer}.
			With(SubjectAttribute, u.Identification.Subject)
	}
	return attrs.With(SubjectAttribute, u.Identification.Subject)
}

// DefaultCriterion selects exactly this caller.
func (u *UserContext) DefaultCriterion() metadata.Criterion {
	return DefaultCriterion(u.Identification)
}

// DefaultCriterion selects the caller with the given identification.
func DefaultCriterion(id Identification) metadata.Criterion {
	return metadata.Criterion{
		Issuer:    id.Issuer,
		Attribute: SubjectAttribute,
		Value:     id.Subject,
	}
}
