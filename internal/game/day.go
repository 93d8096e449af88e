package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/transport"
)

// DayPipeline runs one day round: the night-results notice, the
// discussion with per-speaker re-broadcast, and the elimination vote.
type DayPipeline struct {
	roster    *Roster
	fanout    *Fanout
	messenger transport.Messenger
	rng       *rand.Rand
	moderator string
	log       zerolog.Logger
}

// NewDayPipeline wires a day pipeline.
func NewDayPipeline(roster *Roster, fanout *Fanout, messenger transport.Messenger, rng *rand.Rand, moderator string, log zerolog.Logger) *DayPipeline {
	return &DayPipeline{
		roster:    roster,
		fanout:    fanout,
		messenger: messenger,
		rng:       rng,
		moderator: moderator,
		log:       log.With().Str("component", "day").Logger(),
	}
}

func (d *DayPipeline) msg(kind models.Kind, content string) models.Message {
	return models.Message{Kind: kind, Source: d.moderator, Content: content}
}

// Run executes the day steps. eliminated is the night's death list for
// the opening notice. It returns the canonical identity voted out, or
// empty when the vote produced nobody.
func (d *DayPipeline) Run(ctx context.Context, eliminated []string) string {
	var notice string
	if len(eliminated) == 0 {
		notice = "The day is coming, all the players open your eyes. Last night is peaceful, no player is eliminated."
	} else {
		notice = "The day is coming, all the players open your eyes. Last night, the following player(s) has been eliminated: " + strings.Join(eliminated, ", ")
	}
	d.fanout.Notify(ctx, d.msg(models.KindSystemNotice, notice), models.RoleAny)

	d.discuss(ctx)
	return d.vote(ctx)
}

// discuss asks each survivor in roster order what they want to say and
// re-broadcasts every statement before moving to the next speaker, so
// the broadcast order is the roster order, not the response-arrival
// order.
func (d *DayPipeline) discuss(ctx context.Context) {
	prompt := "Now the alive players are: " + strings.Join(d.roster.Survivors(), ", ") +
		". Given the game rules and your role, based on the situation and the information you gain, what do you want to say to others?"

	for _, p := range d.roster.AliveOfRole(models.RoleAny) {
		res, err := d.messenger.Send(ctx, d.msg(models.KindDayDiscuss, prompt), p.Identity)
		if err != nil {
			d.log.Warn().Str("recipient", p.Identity).Err(err).Msg("discussion skipped, participant unreachable")
			continue
		}
		statement := res
		statement.Kind = models.KindSystemNotice
		d.fanout.Notify(ctx, statement, models.RoleAny)
	}
}

// vote collects the elimination vote from all survivors, applies the
// result to the roster, and announces it.
func (d *DayPipeline) vote(ctx context.Context) string {
	votes := d.fanout.Collect(ctx,
		d.msg(models.KindDayVote, "It's time to vote. Which player do you suspect to be a wolf?"),
		models.RoleAny)
	votes = ResolveVotes(d.roster, votes)
	votes = FilterVoters(d.roster, votes, models.RoleAny)

	target := CollectVotes(votes, d.rng)
	if target == "" {
		d.log.Info().Msg("day vote produced no elimination")
		return ""
	}

	d.fanout.Notify(ctx,
		d.msg(models.KindSystemNotice, fmt.Sprintf("The voting result is: Player %s has been eliminated.", target)),
		models.RoleAny)

	canonical := d.roster.MarkDead(target)
	d.log.Info().Str("eliminated", canonical).Msg("day vote applied")
	return canonical
}
