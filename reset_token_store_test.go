package iam_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-iam"
)

func newTestResetStore(clock *testClock, opts ...iam.ResetTokenStoreOption) *iam.MemoryResetTokenStore {
	opts = append([]iam.ResetTokenStoreOption{iam.WithResetTokenClock(clock.Now)}, opts...)
	return iam.NewMemoryResetTokenStore(15*time.Minute, opts...)
}

func TestMemoryResetTokenStore_Generate(t *testing.T) {
	clock := newTestClock(epoch)
	store := newTestResetStore(clock)

	account := privateClientRecord("Marko@Bank.rs", "265-0000000001")

	token, err := store.Generate(*account, "https://bank.rs/api/users/changePasswordSubmit/")
	require.NoError(t, err)

	assert.NotEmpty(t, token.TokenID)
	assert.Equal(t, "marko@bank.rs", token.BoundEmail)
	assert.Equal(t, "https://bank.rs/api/users/changePasswordSubmit/"+token.TokenID, token.URLLink)
	assert.Equal(t, epoch, token.CreatedAt)
	assert.Equal(t, epoch.Add(15*time.Minute), token.ExpiresAt)
	assert.False(t, token.Consumed)
	assert.Equal(t, 1, store.Len())

	t.Run("ids are unique", func(t *testing.T) {
		other, err := store.Generate(*account, "")
		require.NoError(t, err)
		assert.NotEqual(t, token.TokenID, other.TokenID)
	})

	t.Run("requires an email", func(t *testing.T) {
		_, err := store.Generate(iam.UserRecord{}, "")
		assert.Error(t, err)
	})
}

func TestMemoryResetTokenStore_GenerateRetriesOnCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	var n int
	store := newTestResetStore(newTestClock(epoch), iam.WithResetTokenIDGenerator(func() string {
		id := ids[n]
		n++
		return id
	}))

	account := privateClientRecord("marko@bank.rs", "1")

	first, err := store.Generate(*account, "")
	require.NoError(t, err)
	second, err := store.Generate(*account, "")
	require.NoError(t, err)

	assert.Equal(t, "dup", first.TokenID)
	assert.Equal(t, "fresh", second.TokenID)
}

func TestMemoryResetTokenStore_GenerateGivesUpOnStuckGenerator(t *testing.T) {
	var calls atomic.Int32
	store := newTestResetStore(newTestClock(epoch), iam.WithResetTokenIDGenerator(func() string {
		calls.Add(1)
		return "stuck"
	}))

	account := privateClientRecord("marko@bank.rs", "1")

	_, err := store.Generate(*account, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := store.Generate(*account, "")
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Generate kept retrying a colliding id")
	}

	assert.LessOrEqual(t, calls.Load(), int32(1+5))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryResetTokenStore_IsValid(t *testing.T) {
	account := privateClientRecord("marko@bank.rs", "1")

	tests := []struct {
		name    string
		advance time.Duration
		email   string
		unknown bool
		consume bool
		valid   bool
	}{
		{name: "fresh token", email: "marko@bank.rs", valid: true},
		{name: "email is case insensitive", email: "MARKO@bank.rs", valid: true},
		{name: "at exact expiry", advance: 15 * time.Minute, email: "marko@bank.rs", valid: true},
		{name: "after expiry", advance: 15*time.Minute + time.Second, email: "marko@bank.rs", valid: false},
		{name: "minute sixteen", advance: 16 * time.Minute, email: "marko@bank.rs", valid: false},
		{name: "other email", email: "ana@bank.rs", valid: false},
		{name: "consumed", email: "marko@bank.rs", consume: true, valid: false},
		{name: "unknown id", email: "marko@bank.rs", unknown: true, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock(epoch)
			store := newTestResetStore(clock)

			token, err := store.Generate(*account, "")
			require.NoError(t, err)

			if tt.consume {
				store.Consume(token.TokenID)
			}
			clock.Advance(tt.advance)

			id := token.TokenID
			if tt.unknown {
				id = "does-not-exist"
			}

			assert.Equal(t, tt.valid, store.IsValid(iam.PasswordResetToken{TokenID: id, BoundEmail: tt.email}))
		})
	}
}

func TestMemoryResetTokenStore_ConsumeIsIdempotent(t *testing.T) {
	store := newTestResetStore(newTestClock(epoch))
	account := privateClientRecord("marko@bank.rs", "1")

	token, err := store.Generate(*account, "")
	require.NoError(t, err)

	store.Consume(token.TokenID)
	store.Consume(token.TokenID)
	store.Consume("unknown")

	assert.False(t, store.IsValid(token))
	assert.Equal(t, 1, store.Len(), "consuming an unknown id must not insert")
}

func TestMemoryResetTokenStore_Redeem(t *testing.T) {
	store := newTestResetStore(newTestClock(epoch))
	account := privateClientRecord("marko@bank.rs", "1")

	token, err := store.Generate(*account, "")
	require.NoError(t, err)

	assert.False(t, store.Redeem(iam.PasswordResetToken{TokenID: token.TokenID, BoundEmail: "ana@bank.rs"}))
	assert.True(t, store.IsValid(token), "a failed redeem leaves the token usable")

	assert.True(t, store.Redeem(token))
	assert.False(t, store.Redeem(token))
	assert.False(t, store.IsValid(token))
}

func TestMemoryResetTokenStore_ConcurrentRedeemHasOneWinner(t *testing.T) {
	store := newTestResetStore(newTestClock(epoch))
	account := privateClientRecord("marko@bank.rs", "1")

	token, err := store.Generate(*account, "")
	require.NoError(t, err)

	const workers = 32
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if store.Redeem(token) {
				winners.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryResetTokenStore_Prune(t *testing.T) {
	clock := newTestClock(epoch)
	store := newTestResetStore(clock)

	var tokens []iam.PasswordResetToken
	for i := 0; i < 3; i++ {
		account := privateClientRecord(fmt.Sprintf("user%d@bank.rs", i), "1")
		token, err := store.Generate(*account, "")
		require.NoError(t, err)
		tokens = append(tokens, token)
		clock.Advance(5 * time.Minute)
	}

	// now = epoch+15m: first token is at its expiry instant, none expired yet
	store.Consume(tokens[2].TokenID)
	assert.Equal(t, 1, store.Prune())

	clock.Advance(time.Second)
	assert.Equal(t, 1, store.Prune())
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.IsValid(tokens[1]))
}
