package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/identity"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestIssueAndValidate(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	token, err := svc.Issue(UserSpec{
		Issuer:       "idp",
		Subject:      "alice",
		Attributes:   map[string][]string{"group": {"eng"}},
		Capabilities: []string{identity.CapabilityCreateFilesystems},
	}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "idp", claims.Issuer)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"eng"}, claims.Attributes["group"])

	user := claims.UserContext()
	assert.Equal(t, "idp", user.Identification.Issuer)
	assert.Equal(t, "alice", user.Identification.Subject)
	assert.True(t, user.CanCreateFilesystems)
}

func TestIssue_RequiresIdentity(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	_, err = svc.Issue(UserSpec{Issuer: "idp"}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestValidate_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)
	svc.WithClock(func() time.Time { return now })

	token, err := svc.Issue(UserSpec{Issuer: "idp", Subject: "bob"}, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongSecret(t *testing.T) {
	signer, err := NewTokenService(testSecret)
	require.NoError(t, err)
	other, err := NewTokenService("another-secret-that-is-32-chars!!")
	require.NoError(t, err)

	token, err := signer.Issue(UserSpec{Issuer: "idp", Subject: "bob"}, time.Hour)
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "idp", Subject: "mallory"},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_MissingSubject(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := raw.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}
