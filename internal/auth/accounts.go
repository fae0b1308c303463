package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/markbates/goth"
	"github.com/petermazzocco/ai-image-studio/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 6

// Directory is the identity collaborator: it owns user accounts.
type Directory interface {
	SignUp(ctx context.Context, email, password string) (models.User, error)
	SignIn(ctx context.Context, email, password string) (models.User, error)
	// FromProvider finds or creates the account for an OAuth identity.
	FromProvider(ctx context.Context, user goth.User) (models.User, error)
	ByID(ctx context.Context, id string) (models.User, error)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", authErr(ErrInvalidEmail)
	}
	return email, nil
}

func newPasswordUser(email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	if len(password) < minPasswordLen {
		return models.User{}, authErr(ErrWeakPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	return models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Provider:     "password",
		PasswordHash: string(hash),
	}, nil
}

func checkPassword(user models.User, password string) error {
	if user.PasswordHash == "" {
		return authErr(ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return authErr(ErrInvalidCredentials)
	}
	return nil
}

// Accounts is the gorm backed Directory.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) (*Accounts, error) {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &Accounts{db: db}, nil
}

func (a *Accounts) SignUp(ctx context.Context, email, password string) (models.User, error) {
	user, err := newPasswordUser(email, password)
	if err != nil {
		return models.User{}, err
	}

	var count int64
	if err := a.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, authErr(ErrEmailTaken)
	}

	if err := a.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.User{}, authErr(ErrEmailTaken)
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (a *Accounts) SignIn(ctx context.Context, email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, authErr(ErrInvalidCredentials)
	}

	var user models.User
	if err := a.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, authErr(ErrInvalidCredentials)
		}
		return models.User{}, err
	}
	if err := checkPassword(user, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (a *Accounts) FromProvider(ctx context.Context, gu goth.User) (models.User, error) {
	email, err := normalizeEmail(gu.Email)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = a.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, err
	}

	user = models.User{
		ID:       uuid.NewString(),
		Name:     gu.Name,
		Email:    email,
		Provider: gu.Provider,
	}
	if err := a.db.WithContext(ctx).Create(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (a *Accounts) ByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := a.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// MemoryAccounts is an in-process Directory for development and tests.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryAccounts) SignUp(_ context.Context, email, password string) (models.User, error) {
	user, err := newPasswordUser(email, password)
	if err != nil {
		return models.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return models.User{}, authErr(ErrEmailTaken)
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return user, nil
}

func (m *MemoryAccounts) SignIn(_ context.Context, email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, authErr(ErrInvalidCredentials)
	}

	m.mu.RLock()
	id, ok := m.byEmail[email]
	user := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return models.User{}, authErr(ErrInvalidCredentials)
	}
	if err := checkPassword(user, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (m *MemoryAccounts) FromProvider(_ context.Context, gu goth.User) (models.User, error) {
	email, err := normalizeEmail(gu.Email)
	if err != nil {
		return models.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byEmail[email]; ok {
		return m.byID[id], nil
	}
	user := models.User{
		ID:       uuid.NewString(),
		Name:     gu.Name,
		Email:    email,
		Provider: gu.Provider,
	}
	m.byID[user.ID] = user
	m.byEmail[email] = user.ID
	return user, nil
}

func (m *MemoryAccounts) ByID(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}
