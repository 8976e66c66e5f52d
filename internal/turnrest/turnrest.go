// Package turnrest issues ephemeral TURN credentials compatible with
// coturn's REST API mode (use-auth-secret).
//
// See:
// - https://github.com/coturn/coturn/wiki/turnserver
// - https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest
//
// The credential pair is derived from a shared secret:
//
//	username   = <unix_expiry>:<prefix>:<connection_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// Expiry uses the server clock in UTC: now_utc_unix + ttl_seconds.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials is the payload handed to clients. It matches the fields a
// browser needs to fill in an RTCIceServer plus the expiry so clients can
// refresh before the TURN allocation dies.
type Credentials struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
	TTLSeconds int64  `json:"ttl"`
	Realm      string `json:"realm,omitempty"`
	ExpiresAt  int64  `json:"expiresAt"`
}

type Config struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string

	// Now is the clock. Defaults to time.Now; tests inject a fixed one.
	Now func() time.Time
	// NewID supplies the id used by IssueAnonymous. Defaults to a random
	// UUID.
	NewID func() string
}

// Generator derives credential pairs from the shared secret. Safe for
// concurrent use.
type Generator struct {
	secret []byte
	ttl    int64
	prefix string
	realm  string
	now    func() time.Time
	newID  func() string
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTLSeconds,
		prefix: cfg.UsernamePrefix,
		realm:  cfg.Realm,
		now:    now,
		newID:  newID,
	}, nil
}

// Issue mints credentials tied to a connection id. The id lands in the
// TURN username, which makes coturn logs attributable to a signaling
// connection.
func (g *Generator) Issue(connectionID string) (Credentials, error) {
	if connectionID == "" {
		return Credentials{}, errors.New("connectionID is required")
	}
	if strings.Contains(connectionID, ":") {
		return Credentials{}, errors.New("connectionID must not contain ':'")
	}
	expiry := g.now().UTC().Unix() + g.ttl
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, connectionID)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		TTLSeconds: g.ttl,
		Realm:      g.realm,
		ExpiresAt:  expiry,
	}, nil
}

// IssueAnonymous mints credentials for callers that have no signaling
// connection yet.
func (g *Generator) IssueAnonymous() (Credentials, error) {
	return g.Issue(g.newID())
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
