package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/password"
)

var (
	// ErrUserNotFound is returned by GetUserWithTeam for unknown ids.
	ErrUserNotFound = errors.New("directory: user not found")
	// ErrDuplicateUser is returned when an id or identifier is already taken.
	ErrDuplicateUser = errors.New("directory: duplicate user")
)

// placeholderPassword is hashed once so that lookups for unknown identifiers
// spend the same Argon2 time as a wrong password.
const placeholderPassword = "placeholder-password-never-matches"

// User is one directory entry. PasswordHash is a PHC-encoded Argon2id hash.
type User struct {
	ID           string
	Identifier   string
	DisplayName  string
	TeamID       string
	PasswordHash string
}

// Directory stores users in memory. It is safe for concurrent use.
type Directory struct {
	hasher *password.Argon2

	mu           sync.RWMutex
	byID         map[string]User
	byIdentifier map[string]string

	placeholderHash string
}

func New(hasher *password.Argon2) (*Directory, error) {
	if hasher == nil {
		return nil, errors.New("directory: hasher is nil")
	}
	placeholder, err := hasher.Hash(placeholderPassword)
	if err != nil {
		return nil, fmt.Errorf("directory: hash placeholder: %w", err)
	}
	return &Directory{
		hasher:          hasher,
		byID:            make(map[string]User),
		byIdentifier:    make(map[string]string),
		placeholderHash: placeholder,
	}, nil
}

// Add inserts u. Identifiers are matched case-insensitively.
func (d *Directory) Add(u User) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Identifier) == "" {
		return errors.New("directory: user id and identifier are required")
	}
	if u.PasswordHash == "" {
		return errors.New("directory: password hash is required")
	}
	key := normalizeIdentifier(u.Identifier)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[u.ID]; ok {
		return fmt.Errorf("%w: id %q", ErrDuplicateUser, u.ID)
	}
	if _, ok := d.byIdentifier[key]; ok {
		return fmt.Errorf("%w: identifier %q", ErrDuplicateUser, u.Identifier)
	}
	d.byID[u.ID] = u
	d.byIdentifier[key] = u.ID
	return nil
}

// AddWithPassword hashes plain and inserts the user.
func (d *Directory) AddWithPassword(u User, plain string) error {
	hash, err := d.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("directory: hash password for %q: %w", u.Identifier, err)
	}
	u.PasswordHash = hash
	return d.Add(u)
}

// Authenticate returns the id of the user owning identifier when password
// matches. Unknown identifiers and wrong passwords both return
// goSession.ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, identifier, plain string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.RLock()
	id, ok := d.byIdentifier[normalizeIdentifier(identifier)]
	user := d.byID[id]
	d.mu.RUnlock()

	hash := user.PasswordHash
	if !ok {
		hash = d.placeholderHash
	}
	match, err := d.hasher.Verify(plain, hash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return "", goSession.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("directory: verify: %w", err)
	}
	if !ok || !match {
		return "", goSession.ErrInvalidCredentials
	}
	return user.ID, nil
}

// GetUserWithTeam returns the user and team for userID. TeamID is empty for
// users without a team.
func (d *Directory) GetUserWithTeam(ctx context.Context, userID string) (goSession.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return goSession.UserRecord{}, err
	}
	d.mu.RLock()
	user, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return goSession.UserRecord{}, ErrUserNotFound
	}
	return goSession.UserRecord{
		ID:          user.ID,
		TeamID:      user.TeamID,
		DisplayName: user.DisplayName,
	}, nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
