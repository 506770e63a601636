package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-iam"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("IAM_AUTH_SIGNING_KEY", "cli-key")

	out, err := runRoot(t, "token", "--email", "boss@bank.rs", "--role", "admin", "--sub", "42")
	require.NoError(t, err)

	claims, err := iam.NewTokenService(iam.Options{SigningKey: "cli-key", Issuer: "go-iam"}).Decode(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.SubjectID)
	assert.Equal(t, "boss@bank.rs", claims.Email)
	assert.Equal(t, iam.RoleAdmin, claims.Role)
}

func TestTokenCommand_Rejects(t *testing.T) {
	t.Setenv("IAM_AUTH_SIGNING_KEY", "cli-key")

	_, err := runRoot(t, "token", "--email", "boss@bank.rs", "--role", "root")
	assert.ErrorContains(t, err, "unknown role")

	_, err = runRoot(t, "token", "--role", "admin")
	assert.Error(t, err, "email is required")
}
