// Package tracking signs click-through links, builds the public site links of
// a digest and records opens and clicks.
package tracking

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidLink = errors.New("invalid tracking link")

// ErrNoSecret is returned when a signer has no key configured.
var ErrNoSecret = errors.New("tracking secret not configured")

// ClickClaims is the payload of a signed click link.
type ClickClaims struct {
	DeliveryID string `json:"did"`
	URL        string `json:"url"`
	jwt.RegisteredClaims
}

// LinkSigner issues and verifies HS256 click tokens.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner creates a signer. ttl <= 0 issues tokens that never expire.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign creates a token binding deliveryID to target.
func (s *LinkSigner) Sign(deliveryID, target string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := &ClickClaims{
		DeliveryID: deliveryID,
		URL:        target,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks a token and returns its claims.
func (s *LinkSigner) Verify(token string) (*ClickClaims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, ErrNoSecret)
	}
	claims := &ClickClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if claims.DeliveryID == "" || claims.URL == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidLink)
	}
	return claims, nil
}

// Links builds the public URLs embedded in a digest.
type Links struct {
	BaseURL string
	Signer  *LinkSigner
}

func (l Links) join(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(l.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}

// View is the online version of a newsletter.
func (l Links) View(newsletterID string) string {
	if newsletterID == "" {
		return ""
	}
	return l.join("newsletters", newsletterID)
}

// Unsubscribe is empty for recipients without a token.
func (l Links) Unsubscribe(token string) string {
	if token == "" {
		return ""
	}
	return l.join("unsubscribe", token)
}

// Preferences is empty for recipients without a token.
func (l Links) Preferences(token string) string {
	if token == "" {
		return ""
	}
	return l.join("preferences", token)
}

// Pixel is the open-tracking image of a delivery.
func (l Links) Pixel(deliveryID string) string {
	if deliveryID == "" {
		return ""
	}
	return l.join("t", "o", deliveryID)
}

// Click wraps target in a signed redirect for deliveryID. Without a delivery
// or signer, or when signing fails, target is returned unchanged.
func (l Links) Click(deliveryID, target string) string {
	if deliveryID == "" || l.Signer == nil || target == "" {
		return target
	}
	token, err := l.Signer.Sign(deliveryID, target)
	if err != nil {
		return target
	}
	return l.join("t", "c", token)
}
