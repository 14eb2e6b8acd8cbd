// Package domain defines the core domain models for muxd.
package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConnNamePrefix is the prefix of every generated connection name.
const ConnNamePrefix = "conn-"

// Session is the server-side identity record created for a client.
type Session struct {
	// ID is issued by the registry and strictly increases.
	ID int64 `json:"id"`

	// ConnName is the unique connection name, format conn-{ulid_lowercase}.
	ConnName string `json:"conn_name"`

	// Alias is a short human-readable name derived from the ID.
	Alias string `json:"alias"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`
}

// NewSession builds a Session for an already issued id.
func NewSession(id int64) (*Session, error) {
	if id <= 0 {
		return nil, ErrSessionValidation.WithDetails(fmt.Sprintf("id must be positive, got %d", id))
	}

	connName, err := GenerateConnName()
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		ConnName:  connName,
		Alias:     AliasFor(id),
		CreatedAt: time.Now().UnixMilli(),
	}, nil
}

// GenerateConnName generates a new connection name using ULID.
func GenerateConnName() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return ConnNamePrefix + strings.ToLower(id.String()), nil
}

var aliasAdjectives = []string{
	"amber", "brisk", "calm", "dusky", "eager", "fuzzy", "gentle", "hazy",
	"icy", "jolly", "keen", "lucid", "mellow", "nimble", "olive", "proud",
}

var aliasNouns = []string{
	"otter", "falcon", "maple", "comet", "heron", "badger", "willow", "lynx",
	"pebble", "harbor", "quartz", "raven", "tundra", "violet", "walrus", "zephyr",
}

// AliasFor returns the deterministic alias for an id.
//
// The first len(adjectives)*len(nouns) ids get a bare adjective-noun pair;
// later ids get a numeric suffix so aliases never repeat.
func AliasFor(id int64) string {
	if id < 0 {
		id = -id
	}
	n := int64(len(aliasNouns))
	a := int64(len(aliasAdjectives))
	idx := id % (a * n)
	alias := aliasAdjectives[idx/n] + "-" + aliasNouns[idx%n]
	if round := id / (a * n); round > 0 {
		alias = fmt.Sprintf("%s-%d", alias, round)
	}
	return alias
}

// Validate checks the session fields.
func (s *Session) Validate() error {
	var violations []string

	if s.ID <= 0 {
		violations = append(violations, "id must be positive")
	}
	if !IsValidConnName(s.ConnName) {
		violations = append(violations, "conn_name is malformed")
	}
	if s.Alias == "" {
		violations = append(violations, "alias is required")
	}

	if len(violations) > 0 {
		return ErrSessionValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *Session) CreatedAtTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// IsValidConnName checks the conn-{ulid} format.
func IsValidConnName(name string) bool {
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, ConnNamePrefix) {
		return false
	}
	// conn- (5) + ULID (26)
	if len(name) != len(ConnNamePrefix)+26 {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(name[len(ConnNamePrefix):]))
	return err == nil
}
