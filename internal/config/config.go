// Package config loads the moderator's startup configuration: required
// environment values and the per-game setup table. Both are hard
// preconditions; any error here aborts before game state exists.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Env holds the values the moderator reads from the environment.
type Env struct {
	AgentID       string `env:"MEMBASE_ID,required"`
	TaskID        string `env:"MEMBASE_TASK_ID,required"`
	Account       string `env:"MEMBASE_ACCOUNT,required"`
	SecretKey     string `env:"MEMBASE_SECRET_KEY,required"`
	ChainRPC      string `env:"MEMBASE_CHAIN_RPC" envDefault:"https://bsc-testnet-rpc.publicnode.com"`
	ContractAddr  string `env:"MEMBASE_CONTRACT" envDefault:"0x06084345b09eC4aEf03BA81E66E339a73449556b"`
	ListenAddr    string `env:"MOONHOWL_LISTEN_ADDR" envDefault:":50060"`
	AdvertiseAddr string `env:"MOONHOWL_ADVERTISE_ADDR"`
	GameFile      string `env:"MOONHOWL_GAME_FILE" envDefault:"game.yaml"`
	JoinQRPath    string `env:"MOONHOWL_JOIN_QR"`
	SkipChain     bool   `env:"MOONHOWL_SKIP_CHAIN"`
}

// JoinAddr returns the address participants dial. The configured
// advertise address wins; otherwise a host-less listen address like
// ":50060" gets the machine hostname filled in, since the bare form is
// bindable but not dialable.
func (e Env) JoinAddr() string {
	if e.AdvertiseAddr != "" {
		return e.AdvertiseAddr
	}
	host, port, err := net.SplitHostPort(e.ListenAddr)
	if err != nil {
		return e.ListenAddr
	}
	if host == "" {
		host = "localhost"
		if name, err := os.Hostname(); err == nil && name != "" {
			host = name
		}
	}
	return net.JoinHostPort(host, port)
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Duration wraps time.Duration so yaml values can be written as "300s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RoleSlots declares how many roster slots one role gets. Order in the
// config file is the roster's slot order.
type RoleSlots struct {
	Role  string `yaml:"role"`
	Count int    `yaml:"count"`
}

// Game is the per-game setup table.
type Game struct {
	Roles               []RoleSlots `yaml:"roles"`
	RegistrationTimeout Duration    `yaml:"registration_timeout"`
	RegistrationPoll    Duration    `yaml:"registration_poll"`
	SendTimeout         Duration    `yaml:"send_timeout"`
	MaxRounds           int         `yaml:"max_rounds"`
	Seed                int64       `yaml:"seed"`
}

// ErrNoRoles indicates the setup table declares no role slots.
var ErrNoRoles = errors.New("game config declares no role slots")

// DefaultGame returns the classic six-player table: two wolves, two
// villagers, one seer, one witch.
func DefaultGame() Game {
	return Game{
		Roles: []RoleSlots{
			{Role: "wolf", Count: 2},
			{Role: "village", Count: 2},
			{Role: "seer", Count: 1},
			{Role: "witch", Count: 1},
		},
		RegistrationTimeout: Duration(300 * time.Second),
		RegistrationPoll:    Duration(5 * time.Second),
		SendTimeout:         Duration(60 * time.Second),
		MaxRounds:           1,
	}
}

// LoadGame reads the setup table from path. A missing file yields the
// default table; a present but invalid file is an error.
func LoadGame(path string) (Game, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGame(), nil
	}
	if err != nil {
		return Game{}, fmt.Errorf("read game config: %w", err)
	}

	g := DefaultGame()
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Game{}, fmt.Errorf("parse game config: %w", err)
	}
	if err := g.validate(); err != nil {
		return Game{}, err
	}
	return g, nil
}

func (g Game) validate() error {
	if len(g.Roles) == 0 {
		return ErrNoRoles
	}
	for _, rs := range g.Roles {
		if rs.Role == "" {
			return fmt.Errorf("game config: role name must not be empty")
		}
		if rs.Count <= 0 {
			return fmt.Errorf("game config: role %q needs a positive count, got %d", rs.Role, rs.Count)
		}
	}
	if g.MaxRounds <= 0 {
		return fmt.Errorf("game config: max_rounds must be positive, got %d", g.MaxRounds)
	}
	if g.RegistrationTimeout <= 0 || g.RegistrationPoll <= 0 || g.SendTimeout <= 0 {
		return fmt.Errorf("game config: timeouts must be positive")
	}
	return nil
}
