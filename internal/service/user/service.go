package user

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmgate/llmgate/internal/storage"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// dummyHash is a throwaway bcrypt hash compared against when the username
// is unknown, so login latency doesn't leak which usernames exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Account is one persisted credential record. Passwords are stored as
// bcrypt hashes only.
type Account struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// Service manages signup and login over a JSON credential file.
type Service struct {
	mu       sync.Mutex
	path     string
	accounts map[string]Account
}

// NewService loads the credential file at path, creating state for an
// empty or missing file.
func NewService(path string) (*Service, error) {
	svc := &Service{path: path, accounts: make(map[string]Account)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return svc, nil
		}
		return nil, errors.Wrapf(storage.ErrStorage, "read %s: %v", path, err)
	}

	var records []Account
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(storage.ErrStorage, "decode %s: %v", path, err)
	}
	for _, account := range records {
		svc.accounts[account.Username] = account
	}
	return svc, nil
}

// Signup registers a new account with a bcrypt-hashed password.
func (s *Service) Signup(_ context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; ok {
		return errors.Wrapf(ErrUserExists, "username %s", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	s.accounts[username] = Account{Username: username, Email: email, PasswordHash: string(hash)}
	if err := s.persist(); err != nil {
		delete(s.accounts, username)
		return err
	}
	return nil
}

// Login verifies the password against the stored hash. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(_ context.Context, username, password string) error {
	s.mu.Lock()
	account, ok := s.accounts[username]
	s.mu.Unlock()

	if !ok {
		// Burn a compare anyway so unknown users cost the same as known ones.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// persist rewrites the credential file. Callers hold s.mu.
func (s *Service) persist() error {
	records := make([]Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		records = append(records, account)
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return errors.Wrapf(storage.ErrStorage, "encode users: %v", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrapf(storage.ErrStorage, "write %s: %v", s.path, err)
	}
	return nil
}
