// Package preview issues and verifies signed, time-limited capability
// tokens that grant read access to a single post without authentication.
//
// Tokens are self-contained: the payload ({"postId":N,"exp":M}, exp in
// epoch milliseconds) is base64url-encoded without padding and signed with
// HMAC-SHA256, producing "<payload>.<signature>". Verification needs no
// server-side state, so the scheme scales horizontally; the trade-off is
// that a token cannot be revoked before expiry except by rotating the
// secret, which invalidates every outstanding token.
package preview

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the token lifetime used when the caller does not supply one.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidPostID is returned by Create for non-positive post ids.
	// A caller error, not an expected runtime condition.
	ErrInvalidPostID = errors.New("preview: post id must be positive")

	// ErrMissingSecret is returned lazily on the first token operation when
	// neither a dedicated preview secret nor a session secret is configured.
	ErrMissingSecret = errors.New("preview: no signing secret configured (set PREVIEW_TOKEN_SECRET or SESSION_SECRET)")
)

var base64urlRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Payload is the signed content of a preview token.
type Payload struct {
	PostID int64 `json:"postId"`
	Exp    int64 `json:"exp"` // absolute expiry, Unix milliseconds
}

// ExpiresAt returns the expiry as a time.Time.
func (p Payload) ExpiresAt() time.Time {
	return time.UnixMilli(p.Exp)
}

// Token pairs an encoded token string with its decoded payload.
type Token struct {
	Value   string
	Payload Payload
}

// Issuer creates and verifies preview tokens with a process-wide signing
// secret. The secret is resolved once on first use: the dedicated secret
// wins, the session secret is the fallback. Racing initializations are
// harmless since every caller computes the same value from the same
// configuration.
type Issuer struct {
	dedicated string
	fallback  string

	once   sync.Once
	secret []byte
	err    error

	now func() time.Time // overridable in tests
}

// NewIssuer returns an Issuer that signs with dedicated if non-empty,
// else with fallback. Secret resolution is deferred to the first token
// operation so that token-free deployments never hit the configuration
// error.
func NewIssuer(dedicated, fallback string) *Issuer {
	return &Issuer{dedicated: dedicated, fallback: fallback, now: time.Now}
}

func (i *Issuer) key() ([]byte, error) {
	i.once.Do(func() {
		switch {
		case i.dedicated != "":
			i.secret = []byte(i.dedicated)
		case i.fallback != "":
			i.secret = []byte(i.fallback)
		default:
			i.err = ErrMissingSecret
		}
	})
	return i.secret, i.err
}

func sign(secret []byte, encodedPayload string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}

// Create issues a token for postID. A ttl <= 0 selects DefaultTTL.
// Returns ErrInvalidPostID for non-positive ids and ErrMissingSecret when
// no signing secret is configured.
func (i *Issuer) Create(postID int64, ttl time.Duration) (Token, error) {
	if postID <= 0 {
		return Token{}, ErrInvalidPostID
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	secret, err := i.key()
	if err != nil {
		return Token{}, err
	}

	payload := Payload{PostID: postID, Exp: i.now().Add(ttl).UnixMilli()}
	body, err := json.Marshal(payload)
	if err != nil {
		return Token{}, err
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	sig := base64.RawURLEncoding.EncodeToString(sign(secret, encoded))

	return Token{Value: encoded + "." + sig, Payload: payload}, nil
}

// Verify checks a token and returns its payload, or nil for any invalid,
// tampered, or expired token. Malformed input is an expected condition and
// never an error; the only error Verify can return is ErrMissingSecret.
func (i *Issuer) Verify(token string) (*Payload, error) {
	secret, err := i.key()
	if err != nil {
		return nil, err
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, nil
	}
	if !base64urlRe.MatchString(parts[0]) || !base64urlRe.MatchString(parts[1]) {
		return nil, nil
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil
	}

	// hmac.Equal is constant-time; length mismatch (including a zero-length
	// signature) never matches.
	if len(sig) == 0 || !hmac.Equal(sig, sign(secret, parts[0])) {
		return nil, nil
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}
	if payload.PostID <= 0 {
		return nil, nil
	}
	if payload.Exp <= i.now().UnixMilli() {
		return nil, nil
	}
	return &payload, nil
}
