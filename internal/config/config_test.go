package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEMBASE_ID", "moderator")
	t.Setenv("MEMBASE_TASK_ID", "task-1")
	t.Setenv("MEMBASE_ACCOUNT", "0xabc")
	t.Setenv("MEMBASE_SECRET_KEY", "deadbeef")
}

func TestParseEnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	e, err := ParseEnv()
	require.NoError(t, err)

	assert.Equal(t, "moderator", e.AgentID)
	assert.Equal(t, "task-1", e.TaskID)
	assert.Equal(t, "https://bsc-testnet-rpc.publicnode.com", e.ChainRPC)
	assert.Equal(t, "0x06084345b09eC4aEf03BA81E66E339a73449556b", e.ContractAddr)
	assert.Equal(t, ":50060", e.ListenAddr)
	assert.Equal(t, "game.yaml", e.GameFile)
	assert.Empty(t, e.JoinQRPath)
	assert.False(t, e.SkipChain)
}

func TestParseEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MOONHOWL_LISTEN_ADDR", ":9999")
	t.Setenv("MOONHOWL_ADVERTISE_ADDR", "game.example.com:9999")
	t.Setenv("MOONHOWL_SKIP_CHAIN", "true")

	e, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9999", e.ListenAddr)
	assert.Equal(t, "game.example.com:9999", e.AdvertiseAddr)
	assert.True(t, e.SkipChain)
}

func TestJoinAddr(t *testing.T) {
	assert.Equal(t, "game.example.com:50060",
		Env{AdvertiseAddr: "game.example.com:50060", ListenAddr: ":50060"}.JoinAddr(),
		"an advertise address wins outright")

	assert.Equal(t, "10.0.0.5:50060",
		Env{ListenAddr: "10.0.0.5:50060"}.JoinAddr(),
		"a listen address with a host is already dialable")

	// A bare ":50060" binds fine but dials nowhere; the hostname (or
	// localhost) fills the gap.
	host, port, err := net.SplitHostPort(Env{ListenAddr: ":50060"}.JoinAddr())
	require.NoError(t, err)
	assert.NotEmpty(t, host)
	assert.Equal(t, "50060", port)
}

func TestParseEnvRequiresIdentity(t *testing.T) {
	setRequiredEnv(t)
	// t.Setenv registered the restore; required means set, not just
	// non-empty, so the variable has to go away entirely.
	require.NoError(t, os.Unsetenv("MEMBASE_ID"))

	_, err := ParseEnv()
	assert.Error(t, err)
}

func writeGameFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGameMissingFileUsesDefaults(t *testing.T) {
	g, err := LoadGame(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultGame(), g)
}

func TestLoadGameParsesDurationsAndRoles(t *testing.T) {
	path := writeGameFile(t, `
roles:
  - role: wolf
    count: 3
  - role: village
    count: 4
registration_timeout: 2m
registration_poll: 1s
send_timeout: 45s
max_rounds: 5
seed: 42
`)

	g, err := LoadGame(path)
	require.NoError(t, err)

	require.Len(t, g.Roles, 2)
	assert.Equal(t, RoleSlots{Role: "wolf", Count: 3}, g.Roles[0])
	assert.Equal(t, RoleSlots{Role: "village", Count: 4}, g.Roles[1])
	assert.Equal(t, 2*time.Minute, g.RegistrationTimeout.Std())
	assert.Equal(t, time.Second, g.RegistrationPoll.Std())
	assert.Equal(t, 45*time.Second, g.SendTimeout.Std())
	assert.Equal(t, 5, g.MaxRounds)
	assert.Equal(t, int64(42), g.Seed)
}

func TestLoadGamePartialFileKeepsDefaults(t *testing.T) {
	path := writeGameFile(t, "max_rounds: 3\n")

	g, err := LoadGame(path)
	require.NoError(t, err)
	assert.Equal(t, 3, g.MaxRounds)
	assert.Equal(t, DefaultGame().Roles, g.Roles)
	assert.Equal(t, 300*time.Second, g.RegistrationTimeout.Std())
}

func TestLoadGameRejectsBadDuration(t *testing.T) {
	path := writeGameFile(t, "registration_timeout: five minutes\n")

	_, err := LoadGame(path)
	assert.Error(t, err)
}

func TestLoadGameRejectsInvalidTable(t *testing.T) {
	for name, content := range map[string]string{
		"empty roles":    "roles: []\n",
		"zero count":     "roles:\n  - role: wolf\n    count: 0\n",
		"nameless role":  "roles:\n  - role: \"\"\n    count: 1\n",
		"zero rounds":    "max_rounds: 0\n",
		"negative timer": "send_timeout: -5s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadGame(writeGameFile(t, content))
			assert.Error(t, err)
		})
	}
}
