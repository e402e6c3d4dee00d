package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func TestEffectiveAttributesAddsSubject(t *testing.T) {
	u := New("idp", "alice", map[string][]string{"group": {"staff"}}, false)

	attrs := u.EffectiveAttributes()
	assert.True(t, attrs.Matches(metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "alice"}))
	assert.True(t, attrs.Matches(metadata.Criterion{Issuer: "idp", Attribute: "group", Value: "staff"}))
	assert.Nil(t, u.Attributes.Values["_subject"])
}

func TestEffectiveAttributesWithoutAttributes(t *testing.T) {
	u := New("idp", "bob", nil, true)

	assert.True(t, u.EffectiveAttributes().Matches(u.DefaultCriterion()))
	assert.True(t, u.CanCreateFilesystems)
}

func TestEffectiveAttributesForeignIssuer(t *testing.T) {
	u := &UserContext{
		Identification: Identification{Issuer: "idp", Subject: "carol"},
		Attributes:     metadata.AttributeSet{Issuer: "other", Values: map[string][]string{"group": {"staff"}}},
	}

	attrs := u.EffectiveAttributes()
	assert.False(t, attrs.Matches(metadata.Criterion{Issuer: "other", Attribute: "group", Value: "staff"}))
	assert.True(t, attrs.Matches(u.DefaultCriterion()))
}

func TestDefaultCriterion(t *testing.T) {
	c := DefaultCriterion(Identification{Issuer: "idp", Subject: "dave"})
	assert.Equal(t, metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "dave"}, c)
}
