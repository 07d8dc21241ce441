package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/listenupapp/library-server/internal/id"
)

const (
	tokenIssuer   = "library-server"
	tokenAudience = "library-client"
)

// ErrInvalidToken is returned by Verify for any token it will not accept.
var ErrInvalidToken = errors.New("invalid token")

// Claims is what a login token asserts about its holder.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"id"`

	Issuer     string    `json:"iss"`
	Audience   string    `json:"aud"`
	IssuedAt   time.Time `json:"iat"`
	Expiration time.Time `json:"exp,omitzero"`
	TokenID    string    `json:"jti"`
}

// TokenService issues and checks PASETO v4.local tokens.
type TokenService struct {
	key      paseto.V4SymmetricKey
	duration time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service from a 32-byte key. A duration of
// zero issues tokens that never expire.
func NewTokenService(key []byte, duration time.Duration) (*TokenService, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", keySize, len(key))
	}
	if duration < 0 {
		return nil, fmt.Errorf("token duration must not be negative: %s", duration)
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	return &TokenService{key: k, duration: duration, now: time.Now}, nil
}

// Duration returns the configured token lifetime, zero meaning unlimited.
func (s *TokenService) Duration() time.Duration {
	return s.duration
}

// Sign encrypts claims into a token. Only Username and UserID are read from c.
func (s *TokenService) Sign(c Claims) (string, error) {
	if c.UserID == "" {
		return "", errors.New("sign token: user id is required")
	}
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(c.UserID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	if s.duration > 0 {
		token.SetExpiration(now.Add(s.duration))
	}

	jti, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	token.SetJti(jti)

	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("username", c.Username)
	//nolint:errcheck // as above
	_ = token.Set("id", c.UserID)

	return token.V4Encrypt(s.key, nil), nil
}

// Verify decrypts and checks a token. Any failure wraps ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	if s.duration > 0 {
		parser.AddRule(paseto.ValidAt(s.now()))
	} else {
		// ValidAt insists on an exp claim, which unlimited tokens lack.
		parser.AddRule(notBefore(s.now()))
	}

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return &claims, nil
}

func notBefore(t time.Time) paseto.Rule {
	return func(token paseto.Token) error {
		nbf, err := token.GetNotBefore()
		if err != nil {
			return err
		}
		if t.Before(nbf) {
			return fmt.Errorf("token not valid before %s", nbf.Format(time.RFC3339))
		}
		return nil
	}
}
