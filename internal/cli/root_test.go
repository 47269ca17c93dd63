package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"release-expired"},
		{"consume-notifications"},
		{"create-user"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, ".env", cmd.PersistentFlags().Lookup("env-file").DefValue)

	down, _, err := cmd.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "1", down.Flags().Lookup("steps").DefValue)

	user, _, err := cmd.Find([]string{"create-user"})
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMER", user.Flags().Lookup("role").DefValue)
}

func TestValidateUser(t *testing.T) {
	assert.NoError(t, validateUser("a@b.c", "long-enough", "STAFF"))

	err := validateUser("nope", "short", "ADMIN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
	assert.Contains(t, err.Error(), "--password")
	assert.Contains(t, err.Error(), "--role")
}

func TestCreateUserRejectsBadInputBeforeConnecting(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env-file", "testdata/none.env", "create-user", "--email", "x", "--password", "p"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", "testdata/none.env", "migrate", "down", "--steps", "0"})
	assert.ErrorContains(t, cmd.Execute(), "--steps")
}

func TestConsumeRequiresBrokerURL(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "")
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", "testdata/none.env", "consume-notifications"})
	assert.ErrorContains(t, cmd.Execute(), "no broker url")
}
