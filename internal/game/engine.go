package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/transport"
)

// Phase is one stage of the engine's state machine. Transitions are
// Lobby -> Night -> Day -> (Night | Terminal); Terminal is absorbing.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseNight    Phase = "night"
	PhaseDay      Phase = "day"
	PhaseTerminal Phase = "terminal"
)

// ErrRegistrationTimeout indicates the lobby closed before every slot
// filled; the game aborts without entering Night.
var ErrRegistrationTimeout = errors.New("registration timed out before all slots filled")

// Config sets up one game.
type Config struct {
	ModeratorID         string
	Slots               []SlotSpec
	RegistrationTimeout time.Duration
	RegistrationPoll    time.Duration
	MaxRounds           int
	Rand                *rand.Rand
	Logger              zerolog.Logger
}

// joinRequest carries one registration attempt into the engine loop.
type joinRequest struct {
	identity string
	reply    chan models.Role
}

// Engine owns the roster, the ability budget, and the phase machine.
// It is the single writer of game state: remote messages reach it only
// as values, and registrations queue up for the lobby loop to consume.
type Engine struct {
	cfg    Config
	roster *Roster
	fanout *Fanout
	night  *NightPipeline
	day    *DayPipeline
	budget AbilityBudget
	joins  chan joinRequest
	log    zerolog.Logger

	// lobbyClosed is closed when runLobby returns, releasing any join
	// still queued or arriving late with an empty role.
	lobbyClosed chan struct{}

	mu    sync.RWMutex
	phase Phase
}

// New builds an engine and registers its message handler on the bus
// under the moderator identity.
func New(cfg Config, bus transport.Bus) (*Engine, error) {
	if cfg.ModeratorID == "" {
		return nil, errors.New("moderator id is required")
	}
	if len(cfg.Slots) == 0 {
		return nil, errors.New("at least one role slot is required")
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = 300 * time.Second
	}
	if cfg.RegistrationPoll <= 0 {
		cfg.RegistrationPoll = 5 * time.Second
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if cfg.Rand == nil {
		seed, err := NewSeed()
		if err != nil {
			return nil, err
		}
		cfg.Rand = rand.New(rand.NewSource(seed))
	}

	log := cfg.Logger.With().Str("component", "engine").Logger()
	roster := NewRoster(cfg.Slots, cfg.Rand)
	fanout := NewFanout(roster, bus, cfg.Logger)

	e := &Engine{
		cfg:         cfg,
		roster:      roster,
		fanout:      fanout,
		budget:      NewAbilityBudget(),
		joins:       make(chan joinRequest, 16),
		lobbyClosed: make(chan struct{}),
		log:         log,
		phase:       PhaseLobby,
	}
	e.night = NewNightPipeline(roster, fanout, &e.budget, cfg.Rand, cfg.ModeratorID, cfg.Logger)
	e.day = NewDayPipeline(roster, fanout, bus, cfg.Rand, cfg.ModeratorID, cfg.Logger)

	if err := bus.Register(cfg.ModeratorID, e.handleMessage); err != nil {
		return nil, fmt.Errorf("register moderator handler: %w", err)
	}
	return e, nil
}

// Phase returns the current phase snapshot.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	e.log.Info().Str("phase", string(p)).Msg("phase transition")
}

func (e *Engine) response(content string) models.Message {
	return models.Message{Kind: models.KindResponse, Source: e.cfg.ModeratorID, Content: content}
}

// handleMessage is the transport handler for the moderator identity.
// Only registrations are acted on, and those only by queueing a join
// for the lobby loop; a remote message can never mutate game state on
// the handler's goroutine.
func (e *Engine) handleMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.Kind != models.KindRegister {
		return e.response(""), nil
	}
	if e.Phase() != PhaseLobby {
		return e.response(""), nil
	}

	req := joinRequest{identity: msg.Source, reply: make(chan models.Role, 1)}
	select {
	case e.joins <- req:
	default:
		// Join queue full; treat like a filled lobby.
		return e.response(""), nil
	}

	select {
	case role := <-req.reply:
		return e.response(string(role)), nil
	case <-e.lobbyClosed:
		// The lobby shut while this join was queued. The lobby loop may
		// still have answered it just before closing.
		select {
		case role := <-req.reply:
			return e.response(string(role)), nil
		default:
			return e.response(""), nil
		}
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// runLobby consumes joins until every slot fills or the registration
// window closes.
func (e *Engine) runLobby(ctx context.Context) error {
	deadline := time.Now().Add(e.cfg.RegistrationTimeout)
	ticker := time.NewTicker(e.cfg.RegistrationPoll)
	defer ticker.Stop()

	for e.roster.OpenSlots() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.joins:
			role := e.roster.Register(req.identity)
			req.reply <- role
			if role == "" {
				e.log.Warn().Str("identity", req.identity).Msg("registration rejected")
				continue
			}
			e.log.Info().Str("identity", req.identity).Str("role", string(role)).
				Int("open_slots", e.roster.OpenSlots()).Msg("participant registered")
		case <-ticker.C:
			if time.Now().After(deadline) {
				return ErrRegistrationTimeout
			}
			e.log.Info().Int("open_slots", e.roster.OpenSlots()).Msg("waiting for players to register")
		}
	}
	return nil
}

// applyEliminations marks the pending candidates dead in fixed order,
// kill first, then poison. The win check happens once afterwards, not
// between the two.
func (e *Engine) applyEliminations(result NightResult) []string {
	var eliminated []string
	for _, candidate := range []string{result.Kill, result.Poison} {
		if canonical := e.roster.MarkDead(candidate); canonical != "" {
			eliminated = append(eliminated, canonical)
		}
	}
	return eliminated
}

// Run drives the full game: lobby, teammate reveal, alternating night
// and day rounds until a faction wins or the round cap is reached, and
// the final outcome broadcast. It returns the outcome; a lobby that
// never fills returns an error and OutcomeNone.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	e.setPhase(PhaseLobby)
	err := e.runLobby(ctx)
	close(e.lobbyClosed)
	if err != nil {
		e.setPhase(PhaseTerminal)
		return OutcomeNone, err
	}
	e.log.Info().Msg("all players registered, game starting")

	wolves := e.roster.Peers(models.RoleWolf)
	e.fanout.Notify(ctx,
		models.Message{
			Kind:    models.KindImportantInfo,
			Source:  e.cfg.ModeratorID,
			Content: "The wolves are: " + strings.Join(wolves, ", "),
		},
		models.RoleWolf)

	outcome := OutcomeNone
	for round := 1; round <= e.cfg.MaxRounds && outcome == OutcomeNone; round++ {
		if ctx.Err() != nil {
			e.setPhase(PhaseTerminal)
			return OutcomeNone, ctx.Err()
		}
		e.log.Info().Int("round", round).Msg("round starting")

		e.setPhase(PhaseNight)
		nightResult := e.night.Run(ctx)
		eliminated := e.applyEliminations(nightResult)
		outcome = EvaluateWin(e.roster)
		if outcome != OutcomeNone {
			break
		}

		e.setPhase(PhaseDay)
		e.day.Run(ctx, eliminated)
		outcome = EvaluateWin(e.roster)
	}

	e.setPhase(PhaseTerminal)
	e.fanout.Notify(ctx,
		models.Message{
			Kind:    models.KindSystemNotice,
			Source:  e.cfg.ModeratorID,
			Content: "Game over: " + outcome.String(),
		},
		models.RoleAny)
	e.log.Info().Str("outcome", outcome.String()).Msg("game over")
	return outcome, nil
}

// Roster exposes the roster for read-only inspection after Run.
func (e *Engine) Roster() *Roster { return e.roster }
