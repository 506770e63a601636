package iam_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-iam"
)

// testClock is a manually advanced clock shared by the components under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// MockUsers implements UserFinder, PasswordStore, EmployeeStore and AccountStore
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) FindByEmail(ctx context.Context, email string) (*iam.UserRecord, error) {
	args := m.Called(ctx, email)
	rec, _ := args.Get(0).(*iam.UserRecord)
	return rec, args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id uuid.UUID) (*iam.UserRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*iam.UserRecord)
	return rec, args.Error(1)
}

func (m *MockUsers) PasswordHash(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockUsers) Create(ctx context.Context, rec *iam.UserRecord, passwordHash string) (*iam.UserRecord, error) {
	args := m.Called(ctx, rec, passwordHash)
	out, _ := args.Get(0).(*iam.UserRecord)
	return out, args.Error(1)
}

func (m *MockUsers) ActivateClient(ctx context.Context, id uuid.UUID, passwordHash string) (*iam.UserRecord, error) {
	args := m.Called(ctx, id, passwordHash)
	out, _ := args.Get(0).(*iam.UserRecord)
	return out, args.Error(1)
}

// MockLogger implements iam.Logger and discards everything
type MockLogger struct{}

func (MockLogger) Debug(string, ...any) {}
func (MockLogger) Info(string, ...any) {}
func (MockLogger) Warn(string, ...any) {}
func (MockLogger) Error(string, ...any) {}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []iam.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, e iam.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []iam.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]iam.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// recordingNotifier captures dispatched links
type recordingNotifier struct {
	mu    sync.Mutex
	sent  map[string]string
	err   error
	calls int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: map[string]string{}}
}

func (n *recordingNotifier) Send(_ context.Context, destination, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.sent[destination] = payload
	return nil
}

func (n *recordingNotifier) Link(destination string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	link, ok := n.sent[destination]
	return link, ok
}

func (n *recordingNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func testOptions() iam.Options {
	return iam.Options{
		SigningKey:      "test-signing-key",
		TokenExpiration: 1,
		Issuer:          "iam-test",
		ResetTokenTTL:   15 * time.Minute,
		ResetCooldown:   time.Minute,
	}
}

func employeeRecord(email string, role iam.RoleType) *iam.UserRecord {
	return &iam.UserRecord{
		ID:       uuid.New(),
		Kind:     iam.KindEmployee,
		Email:    email,
		Username: email,
		Role:     role,
		Active:   true,
		Employee: &iam.EmployeeDetails{Name: "Ana", Surname: "Petrovic", Position: "teller"},
	}
}

func privateClientRecord(email, pan string) *iam.UserRecord {
	return &iam.UserRecord{
		ID:            uuid.New(),
		Kind:          iam.KindPrivateClient,
		Email:         email,
		Username:      email,
		Role:          iam.RoleUser,
		Active:        true,
		PrivateClient: &iam.PrivateClientDetails{PrimaryAccountNumber: pan, Name: "Marko"},
	}
}

func claimsFor(rec *iam.UserRecord) *iam.Claims {
	return &iam.Claims{
		SubjectID: rec.ID.String(),
		Email:     rec.Email,
		Role:      rec.Role,
		IssuedAt:  epoch,
		ExpiresAt: epoch.Add(time.Hour),
	}
}
