package game

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/rules"
)

// Match orchestrates a two-sided sub-game (such as chess) between the
// two registered side slots. The rules engine stays opaque: the match
// relays its prompts and feeds replies back, nothing more.
type Match struct {
	roster    *Roster
	fanout    *Fanout
	engine    rules.Engine
	moderator string
	maxMoves  int
	log       zerolog.Logger
}

// ErrSidesUnfilled indicates a side slot has no registered participant.
var ErrSidesUnfilled = errors.New("both side slots must be filled")

// NewMatch wires a match. maxMoves caps the total move exchanges before
// the match is called off as a draw.
func NewMatch(roster *Roster, fanout *Fanout, engine rules.Engine, moderator string, maxMoves int, log zerolog.Logger) *Match {
	return &Match{
		roster:    roster,
		fanout:    fanout,
		engine:    engine,
		moderator: moderator,
		maxMoves:  maxMoves,
		log:       log.With().Str("component", "match").Logger(),
	}
}

// Run alternates sides until the rules engine reports the game over or
// the move cap is hit. It returns the winning participant's identity,
// or empty for a draw or capped match.
func (m *Match) Run(ctx context.Context) (string, error) {
	sides := m.engine.Sides()
	for _, side := range sides {
		if len(m.roster.AliveOfRole(models.Role(side))) == 0 {
			return "", ErrSidesUnfilled
		}
	}

	turn := 0
	for move := 0; move < m.maxMoves; move++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if _, over := m.engine.Outcome(); over {
			break
		}

		side := sides[turn%2]
		req := models.Message{Kind: models.KindMove, Source: m.moderator, Content: m.engine.Prompt(side)}
		responses := m.fanout.Collect(ctx, req, models.Role(side))
		if len(responses) == 0 {
			m.log.Warn().Str("side", side).Msg("side unreachable, move skipped")
			continue
		}

		result, err := m.engine.Apply(side, responses[0].Content)
		if err != nil {
			m.log.Warn().Str("side", side).Err(err).Msg("illegal move rejected")
			continue
		}
		m.log.Info().Str("side", side).Str("result", result).Msg("move applied")
		m.fanout.Notify(ctx,
			models.Message{Kind: models.KindSystemNotice, Source: m.moderator, Content: result},
			models.RoleAny)
		turn++
	}

	winner, over := m.engine.Outcome()
	if !over || winner == "" {
		return "", nil
	}
	players := m.roster.AliveOfRole(models.Role(winner))
	if len(players) == 0 {
		return "", nil
	}
	identity := players[0].Identity
	m.log.Info().Str("side", winner).Str("identity", identity).Msg("match decided")
	return identity, nil
}
