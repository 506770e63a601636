package iam_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-iam"
)

func newTestProvisioner(t *testing.T) (*iam.AccountProvisioner, *iam.UserRepository, *recordingSink) {
	t.Helper()
	repo := newTestRepository(t)
	sink := &recordingSink{}
	p := iam.NewAccountProvisioner(repo, iam.NewBcryptEncoder(bcrypt.MinCost), nil,
		iam.WithProvisionerActivitySink(sink),
		iam.WithProvisionerLogger(MockLogger{}),
		iam.WithProvisionerClock(newTestClock(epoch).Now),
	)
	return p, repo, sink
}

func TestAccountProvisioner_CreateEmployee(t *testing.T) {
	ctx := context.Background()
	p, repo, sink := newTestProvisioner(t)

	admin := claimsFor(employeeRecord("boss@bank.rs", iam.RoleAdmin))

	created, err := p.CreateEmployee(ctx, admin, iam.UserRecord{
		Email:    "Clerk@Bank.rs",
		Employee: &iam.EmployeeDetails{Name: "Jovana", Surname: "Petrovic"},
	})
	require.NoError(t, err)
	assert.Equal(t, "clerk@bank.rs", created.Email)
	assert.Equal(t, "clerk", created.Username)
	assert.Equal(t, iam.RoleEmployee, created.Role)
	assert.Equal(t, iam.KindEmployee, created.Kind)
	assert.True(t, created.Active)

	hash, err := repo.PasswordHash(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, hash)

	assert.Equal(t, []iam.ActivityEventType{iam.ActivityEventUserCreated}, sink.Types())

	t.Run("duplicate email", func(t *testing.T) {
		_, err := p.CreateEmployee(ctx, admin, iam.UserRecord{Email: "clerk@bank.rs", Username: "other"})
		assert.ErrorIs(t, err, iam.ErrUserExists)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := p.CreateEmployee(ctx, admin, iam.UserRecord{Email: "new@bank.rs", Username: "clerk"})
		assert.ErrorIs(t, err, iam.ErrUserExists)
	})

	t.Run("only admins", func(t *testing.T) {
		teller := claimsFor(employeeRecord("teller@bank.rs", iam.RoleEmployee))
		_, err := p.CreateEmployee(ctx, teller, iam.UserRecord{Email: "x@bank.rs"})
		assert.ErrorIs(t, err, iam.ErrForbidden)

		_, err = p.CreateEmployee(ctx, nil, iam.UserRecord{Email: "x@bank.rs"})
		assert.ErrorIs(t, err, iam.ErrUnauthorized)
	})

	t.Run("client role refused", func(t *testing.T) {
		_, err := p.CreateEmployee(ctx, admin, iam.UserRecord{Email: "y@bank.rs", Role: iam.RoleUser})
		require.Error(t, err)
		assert.False(t, errors.Is(err, iam.ErrUserExists))
	})
}

func TestAccountProvisioner_ClientLifecycle(t *testing.T) {
	ctx := context.Background()
	p, repo, sink := newTestProvisioner(t)

	client, err := p.RegisterClient(ctx, iam.KindCorporateClient, iam.UserRecord{
		Email:       "office@firma.rs",
		Role:        iam.RoleAdmin,
		Permissions: []iam.PermissionType{iam.PermissionDeleteUsers},
		Active:      true,
		CorporateClient: &iam.CorporateClientDetails{
			PrimaryAccountNumber: "265-88",
			Name:                 "Firma doo",
			TaxIDNumber:          "101",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, iam.RoleUser, client.Role)
	assert.Empty(t, client.Permissions)
	assert.False(t, client.Active)
	require.NotNil(t, client.CorporateClient)
	assert.Equal(t, "101", client.CorporateClient.TaxIDNumber)

	_, err = p.RegisterClient(ctx, iam.KindEmployee, iam.UserRecord{Email: "e@bank.rs"})
	require.Error(t, err)

	t.Run("weak password keeps account pending", func(t *testing.T) {
		_, err := p.ActivateClient(ctx, client.ID, "weak")
		assert.ErrorIs(t, err, iam.ErrWeakPassword)

		rec, err := repo.FindByID(ctx, client.ID)
		require.NoError(t, err)
		assert.False(t, rec.Active)
	})

	t.Run("activation", func(t *testing.T) {
		activated, err := p.ActivateClient(ctx, client.ID, "FirstPassw0rd")
		require.NoError(t, err)
		assert.True(t, activated.Active)

		hash, err := repo.PasswordHash(ctx, client.ID)
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("FirstPassw0rd")))
	})

	t.Run("second activation", func(t *testing.T) {
		_, err := p.ActivateClient(ctx, client.ID, "OtherPassw0rd")
		assert.ErrorIs(t, err, iam.ErrAccountNotPending)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := p.ActivateClient(ctx, uuid.New(), "FirstPassw0rd")
		assert.True(t, iam.IsUserNotFound(err))
	})

	assert.Equal(t, []iam.ActivityEventType{
		iam.ActivityEventUserCreated,
		iam.ActivityEventClientActivated,
	}, sink.Types())
}

func TestAccountProvisioner_StoreFailures(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}
	p := iam.NewAccountProvisioner(users, iam.NewBcryptEncoder(bcrypt.MinCost), iam.NewStrengthPolicy(),
		iam.WithProvisionerLogger(MockLogger{}))

	users.On("FindByEmail", mock.Anything, "jelena@bank.rs").
		Return(nil, iam.ErrUserNotFound).Once()
	users.On("Create", mock.Anything, mock.AnythingOfType("*iam.UserRecord"), "").
		Return(nil, errors.New("disk full")).Once()

	_, err := p.RegisterClient(ctx, iam.KindPrivateClient, iam.UserRecord{Email: "jelena@bank.rs"})
	assert.ErrorIs(t, err, iam.ErrOperationFailed)

	id := uuid.New()
	pending := privateClientRecord("jelena@bank.rs", "265-7")
	pending.ID = id
	pending.Active = false

	users.On("FindByID", mock.Anything, id).Return(pending, nil).Once()
	users.On("ActivateClient", mock.Anything, id, mock.AnythingOfType("string")).
		Return(nil, iam.ErrAccountNotPending).Once()

	_, err = p.ActivateClient(ctx, id, "FirstPassw0rd")
	assert.ErrorIs(t, err, iam.ErrAccountNotPending)

	users.AssertExpectations(t)
}
