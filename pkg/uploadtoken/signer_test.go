package uploadtoken

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/metadata"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	return s.WithClock(func() time.Time { return now })
}

func requireInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, metadata.ErrInvalidArgument, metadata.CodeOf(err))
}

func TestRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSigner(t, now)

	payloads := []Payload{
		{ParentID: nil, Name: "a.txt", FileID: 1},
		{ParentID: metadata.Ref(metadata.EntryID(42)), Name: "résumé.pdf", FileID: 7, Replace: true},
	}
	for _, p := range payloads {
		token, err := s.Sign(3, p, now.Add(time.Minute))
		require.NoError(t, err)

		got, err := s.Verify(3, token)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestSignDoesNotAliasParent(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	parent := metadata.EntryID(5)

	token, err := s.Sign(1, Payload{ParentID: &parent, Name: "x", FileID: 1}, now.Add(time.Minute))
	require.NoError(t, err)
	parent = 99

	got, err := s.Verify(1, token)
	require.NoError(t, err)
	assert.Equal(t, metadata.EntryID(5), *got.ParentID)
}

func TestEverySingleByteTamperFails(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)

	token, err := s.Sign(1, Payload{Name: "a.txt", FileID: 9}, now.Add(time.Minute))
	require.NoError(t, err)

	raw := []byte(token)
	for i := range raw {
		tampered := bytes.Clone(raw)
		tampered[i] ^= 0x01
		if string(tampered) == token {
			continue
		}
		_, err := s.Verify(1, string(tampered))
		if err == nil {
			t.Fatalf("tamper at byte %d (%q) verified", i, raw[i])
		}
		requireInvalid(t, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	good := Payload{Name: "a.txt", FileID: 9}

	t.Run("other filesystem", func(t *testing.T) {
		token, err := s.Sign(1, good, now.Add(time.Minute))
		require.NoError(t, err)
		_, err = s.Verify(2, token)
		requireInvalid(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := s.Sign(1, good, now.Add(-time.Second))
		require.NoError(t, err)
		_, err = s.Verify(1, token)
		requireInvalid(t, err)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := NewSigner([]byte(strings.Repeat("z", 32)))
		require.NoError(t, err)
		token, err := other.Sign(1, good, now.Add(time.Minute))
		require.NoError(t, err)
		_, err = s.Verify(1, token)
		requireInvalid(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    Issuer,
				Audience:  jwt.ClaimStrings{"1"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			Upload: &good,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Verify(1, token)
		requireInvalid(t, err)
	})

	t.Run("missing payload", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{"1"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = s.Verify(1, token)
		requireInvalid(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Audience: jwt.ClaimStrings{"1"}},
			Upload:           &good,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = s.Verify(1, token)
		requireInvalid(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, token := range []string{"", "abc", "a.b.c"} {
			_, err := s.Verify(1, token)
			requireInvalid(t, err)
		}
	})
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	assert.True(t, errors.Is(err, ErrInvalidSecretLength))
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(testSecret, PurposeUploadTokens)
	require.NoError(t, err)
	b, err := DeriveKey(testSecret, PurposeUploadTokens)
	require.NoError(t, err)
	c, err := DeriveKey(testSecret, "something else")
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Equal(t, a, b, "derivation is deterministic")
	assert.NotEqual(t, a, c, "purposes separate keys")
	assert.NotEqual(t, testSecret, a)

	_, err = DeriveKey([]byte("short"), PurposeUploadTokens)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}
