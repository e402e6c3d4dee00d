package uploadtoken

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// Common errors for upload tokens.
var (
	ErrInvalidToken        = errors.New("invalid upload token")
	ErrTokenSigningFailed  = errors.New("failed to sign upload token")
	ErrInvalidSecretLength = errors.New("upload token secret must be at least 32 bytes")
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Issuer is the iss claim of every upload token.
const Issuer = "storagebox-upload"

// PurposeUploadTokens labels keys derived for upload tokens.
const PurposeUploadTokens = "storagebox upload token v1"

// DeriveKey derives a 32-byte key for purpose from a master secret with
// HKDF-SHA256, so one configured secret can serve several signers.
func DeriveKey(master []byte, purpose string) ([]byte, error) {
	if len(master) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Signer issues and verifies upload tokens.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner creates a signer using secret as the HMAC key.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	return &Signer{key: append([]byte(nil), secret...), now: time.Now}, nil
}

// WithClock returns a copy of the signer that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	c := *s
	c.now = now
	return &c
}

func audience(fsID metadata.FilesystemID) string {
	return strconv.FormatInt(int64(fsID), 10)
}

// Sign issues a token for payload, valid for filesystem fsID until expires.
func (s *Signer) Sign(fsID metadata.FilesystemID, payload Payload, expires time.Time) (string, error) {
	p := payload
	if p.ParentID != nil {
		p.ParentID = metadata.Ref(*p.ParentID)
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{audience(fsID)},
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Upload: &p,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Verify checks the token's signature, audience, issuer and expiry and
// returns its payload. Every failure is reported as an InvalidArgument
// metadata error wrapping ErrInvalidToken.
func (s *Signer) Verify(fsID metadata.FilesystemID, token string) (Payload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience(fsID)),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return Payload{}, invalid(err)
	}
	if !parsed.Valid {
		return Payload{}, invalid(nil)
	}

	p := claims.Upload
	if p == nil || p.FileID <= 0 || metadata.ValidateName(p.Name) != nil {
		return Payload{}, invalid(errors.New("incomplete payload"))
	}
	return *p, nil
}

func invalid(cause error) error {
	err := ErrInvalidToken
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidToken, cause)
	}
	return &metadata.StoreError{
		Code:    metadata.ErrInvalidArgument,
		Message: "invalid upload token",
		Err:     err,
	}
}
