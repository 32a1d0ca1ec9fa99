// Package auth keeps the signed-in user's credential on disk and decides
// whether it is still usable.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// CredentialsFileName is the credential file inside the config dir
const CredentialsFileName = "credentials.yaml"

// ErrNoCredential means nobody is signed in
var ErrNoCredential = errors.New("not logged in")

// Credential is what a login leaves behind
type Credential struct {
	Token   string    `yaml:"token"`
	Email   string    `yaml:"email"`
	APIURL  string    `yaml:"api_url,omitempty"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Valid reports whether the token is present and not expired at now
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	exp, err := Expiry(c.Token)
	if err != nil {
		return false
	}
	return exp.IsZero() || now.Before(exp)
}

// Expiry reads the exp claim of a JWT. The signature is not checked:
// the key belongs to the server. A token without exp returns the zero
// time.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Store reads and writes the credential file
type Store struct {
	path string
}

// NewStore uses the file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored credential, or ErrNoCredential
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credential
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if c.Token == "" {
		return nil, ErrNoCredential
	}
	return &c, nil
}

// LoadValid is Load that also rejects expired tokens
func (s *Store) LoadValid(now time.Time) (*Credential, error) {
	c, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !c.Valid(now) {
		return nil, ErrNoCredential
	}
	return c, nil
}

// Save writes c readable by the owner only
func (s *Store) Save(c Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(s.path, 0o600)
}

// Clear removes the credential; clearing twice is fine
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
