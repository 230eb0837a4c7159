package identity_test

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	identity "github.com/campuskit/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// testConfig implements identity.Config
type testConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 24,
		issuer:          "test-issuer",
		audience:        []string{"test:audience"},
	}
}

func (c *testConfig) GetSigningKey() string   { return c.signingKey }
func (c *testConfig) GetTokenExpiration() int { return c.tokenExpiration }
func (c *testConfig) GetIssuer() string       { return c.issuer }
func (c *testConfig) GetAudience() []string   { return c.audience }
func (c *testConfig) GetAuthScheme() string   { return "Bearer" }
func (c *testConfig) GetContextKey() string   { return "user" }

// memUsers is an in-memory identity.Users used to exercise the service
// layers without a database. It honors the same contract: conflicts on
// duplicate emails, not-found errors on misses, newest-first listing.
type memUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*identity.User
	nextSeq int
	seqs    map[uuid.UUID]int
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID: map[uuid.UUID]*identity.User{},
		seqs: map[uuid.UUID]int{},
	}
}

func cloneUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return m.GetByIDTx(ctx, nil, id)
}

func (m *memUsers) GetByIDTx(_ context.Context, _ bun.IDB, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return m.GetByEmailTx(ctx, nil, email)
}

func (m *memUsers) GetByEmailTx(_ context.Context, _ bun.IDB, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.byID {
		if u.Email == normEmail(email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) Create(ctx context.Context, record *identity.User) (*identity.User, error) {
	return m.CreateTx(ctx, nil, record)
}

func (m *memUsers) CreateTx(_ context.Context, _ bun.IDB, record *identity.User) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Email = normEmail(record.Email)
	for _, u := range m.byID {
		if u.Email == record.Email {
			return nil, identity.ErrEmailConflict
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = identity.RoleStudent
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}

	m.nextSeq++
	m.seqs[record.ID] = m.nextSeq
	m.byID[record.ID] = cloneUser(record)

	return cloneUser(record), nil
}

func (m *memUsers) Update(ctx context.Context, id uuid.UUID, fields identity.UserUpdate) (*identity.User, error) {
	return m.UpdateTx(ctx, nil, id, fields)
}

func (m *memUsers) UpdateTx(_ context.Context, _ bun.IDB, id uuid.UUID, fields identity.UserUpdate) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if fields.Name != nil {
		u.Name = *fields.Name
	}
	if fields.Email != nil {
		u.Email = normEmail(*fields.Email)
	}
	now := time.Now()
	u.UpdatedAt = &now

	return cloneUser(u), nil
}

func (m *memUsers) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.DeleteTx(ctx, nil, id)
}

func (m *memUsers) DeleteTx(_ context.Context, _ bun.IDB, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return false, nil
	}
	delete(m.byID, id)
	delete(m.seqs, id)
	return true, nil
}

func (m *memUsers) CountByRole(ctx context.Context, role identity.UserRole) (int, error) {
	return m.CountByRoleTx(ctx, nil, role)
}

func (m *memUsers) CountByRoleTx(_ context.Context, _ bun.IDB, role identity.UserRole) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, u := range m.byID {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memUsers) List(_ context.Context) ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*identity.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, cloneUser(u))
	}

	sort.Slice(out, func(i, j int) bool {
		return m.seqs[out[i].ID] > m.seqs[out[j].ID]
	})

	return out, nil
}

func (m *memUsers) TrackAttemptedLogin(_ context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[user.ID]; ok {
		u.LoginAttempts = user.LoginAttempts + 1
		now := time.Now()
		u.LoginAttemptAt = &now
	}
	return nil
}

func (m *memUsers) TrackSuccessfulLogin(_ context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[user.ID]; ok {
		now := time.Now()
		u.LoggedInAt = &now
		u.LoginAttempts = 0
		u.LoginAttemptAt = nil
	}
	return nil
}

var _ identity.Users = (*memUsers)(nil)

// memRepo is an in-memory identity.RepositoryManager. RunInTx serializes
// callers the way a database transaction would for our single-table
// workload, which is what the guarded admin delete relies on.
type memRepo struct {
	users *memUsers
	txMu  sync.Mutex
}

func newMemRepo() *memRepo {
	return &memRepo{users: newMemUsers()}
}

func (m *memRepo) Users() identity.Users { return m.users }

func (m *memRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return f(ctx, bun.Tx{})
}

func (m *memRepo) Validate() error { return nil }
func (m *memRepo) MustValidate()   {}

var _ identity.RepositoryManager = (*memRepo)(nil)

// mustSeedUser inserts a user with an already-hashed password
func mustSeedUser(repo *memRepo, name, email, passwordHash string, role identity.UserRole) *identity.User {
	u, err := repo.users.Create(context.Background(), &identity.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
	})
	if err != nil {
		panic(err)
	}
	return u
}
