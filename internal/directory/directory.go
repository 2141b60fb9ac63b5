package directory

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/unionadmin/benefits-session-service/internal/domain"
)

// ErrInvalidCredentials covers unknown usernames and wrong passwords alike;
// login responses must not reveal which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrUserNotFound = errors.New("user not found")

// Directory resolves dashboard operators. The benefits backend owns the real
// member records; this is only the set of people allowed to administer them.
type Directory interface {
	Authenticate(username, password string) (*domain.UserProfile, error)
	Lookup(userID string) (*domain.UserProfile, error)
}

type account struct {
	passwordHash []byte
	profile      domain.UserProfile
}

// InMemory keeps operator accounts in process memory, seeded at boot.
type InMemory struct {
	mu         sync.RWMutex
	byUsername map[string]*account
	byID       map[string]*account
}

func NewInMemory() *InMemory {
	return &InMemory{
		byUsername: make(map[string]*account),
		byID:       make(map[string]*account),
	}
}

// AddUser hashes password with bcrypt and registers the account.
func (d *InMemory) AddUser(username, password string, profile domain.UserProfile) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acct := &account{passwordHash: hash, profile: profile}
	d.byUsername[username] = acct
	d.byID[profile.ID] = acct
	return nil
}

func (d *InMemory) Authenticate(username, password string) (*domain.UserProfile, error) {
	d.mu.RLock()
	acct, ok := d.byUsername[username]
	d.mu.RUnlock()
	if !ok {
		// Burn a comparison anyway so unknown usernames cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	profile := acct.profile
	return &profile, nil
}

func (d *InMemory) Lookup(userID string) (*domain.UserProfile, error) {
	d.mu.RLock()
	acct, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	profile := acct.profile
	return &profile, nil
}

var dummyHash = mustHash("timing-equalizer")

func mustHash(s string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}
