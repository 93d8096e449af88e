package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// AbilityBudget tracks the witch's one-shot abilities. Each flag moves
// true to false exactly once and never resets.
type AbilityBudget struct {
	Heal   bool
	Poison bool
}

// NewAbilityBudget starts with both abilities available.
func NewAbilityBudget() AbilityBudget {
	return AbilityBudget{Heal: true, Poison: true}
}

// NightResult is the set of pending eliminations one night produced.
// Kill and Poison are canonical identities or empty; both can be set in
// the same night.
type NightResult struct {
	Kill   string
	Poison string
}

// NightPipeline runs one night round: wolf kill vote, witch heal, witch
// poison, seer investigation. Steps are strictly ordered and none is
// re-entered within a round.
type NightPipeline struct {
	roster    *Roster
	fanout    *Fanout
	budget    *AbilityBudget
	rng       *rand.Rand
	moderator string
	log       zerolog.Logger
}

// NewNightPipeline wires a night pipeline. budget is shared with the
// engine and persists across rounds.
func NewNightPipeline(roster *Roster, fanout *Fanout, budget *AbilityBudget, rng *rand.Rand, moderator string, log zerolog.Logger) *NightPipeline {
	return &NightPipeline{
		roster:    roster,
		fanout:    fanout,
		budget:    budget,
		rng:       rng,
		moderator: moderator,
		log:       log.With().Str("component", "night").Logger(),
	}
}

func (n *NightPipeline) msg(kind models.Kind, content string) models.Message {
	return models.Message{Kind: kind, Source: n.moderator, Content: content}
}

// Run executes the night steps and returns the pending eliminations.
// It mutates only the ability budget; deaths are applied by the engine.
func (n *NightPipeline) Run(ctx context.Context) NightResult {
	survivors := strings.Join(n.roster.Survivors(), ", ")
	n.fanout.Notify(ctx,
		n.msg(models.KindSystemNotice, "New night comes. There are survive players: "+survivors),
		models.RoleAny)

	result := NightResult{Kill: n.wolfVote(ctx)}

	healed := n.heal(ctx, &result)
	if !healed {
		result.Poison = n.poison(ctx)
	}

	n.divine(ctx, survivors)
	return result
}

// wolfVote collects the wolves' kill nominations and tallies them.
func (n *NightPipeline) wolfVote(ctx context.Context) string {
	votes := n.fanout.Collect(ctx,
		n.msg(models.KindNightKill, "Which player do you vote to eliminate?"),
		models.RoleWolf)
	votes = ResolveVotes(n.roster, votes)
	votes = FilterVoters(n.roster, votes, models.RoleWolf)

	target := CollectVotes(votes, n.rng)
	n.log.Info().Str("target", target).Int("votes", len(votes)).Msg("wolf vote resolved")

	n.fanout.Notify(ctx,
		n.msg(models.KindSystemNotice, "The player with the most votes is: "+target),
		models.RoleWolf)
	return target
}

// heal offers the witch the healing potion. A "yes" consumes the heal
// budget and clears the pending kill; anything else leaves both alone.
func (n *NightPipeline) heal(ctx context.Context, result *NightResult) bool {
	if !n.budget.Heal || len(n.roster.AliveOfRole(models.RoleWitch)) == 0 {
		return false
	}

	responses := n.fanout.Collect(ctx,
		n.msg(models.KindSave, "You're the witch. Tonight one player is eliminated. Would you like to resurrect this player?"),
		models.RoleWitch)
	if len(responses) == 0 {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(responses[0].Content), "yes") {
		return false
	}

	n.budget.Heal = false
	n.log.Info().Str("saved", result.Kill).Msg("witch used the healing potion")
	result.Kill = ""
	return true
}

// poison offers the witch the poison, only when the heal was not used
// this night. Any reply other than "no" nominates a target and consumes
// the poison budget; an unresolvable target is dropped but the budget
// stays spent.
func (n *NightPipeline) poison(ctx context.Context) string {
	if !n.budget.Poison || len(n.roster.AliveOfRole(models.RoleWitch)) == 0 {
		return ""
	}

	responses := n.fanout.Collect(ctx,
		n.msg(models.KindPoison, "Would you like to eliminate one player? If yes, specify the player name."),
		models.RoleWitch)
	if len(responses) == 0 {
		return ""
	}
	reply := strings.TrimSpace(responses[0].Content)
	if reply == "" || strings.EqualFold(reply, "no") {
		return ""
	}

	n.budget.Poison = false
	target := n.roster.ResolveIdentity(reply)
	if target == "" {
		n.log.Warn().Str("reply", reply).Msg("poison target did not resolve, dropped")
		return ""
	}
	n.log.Info().Str("target", target).Msg("witch used the poison")
	return target
}

// divine lets the seer investigate one survivor; the revealed role goes
// back to the seer and nobody else.
func (n *NightPipeline) divine(ctx context.Context, survivors string) {
	if len(n.roster.AliveOfRole(models.RoleSeer)) == 0 {
		return
	}

	responses := n.fanout.Collect(ctx,
		n.msg(models.KindDivine, "You're the seer. Which player in: "+survivors+" would you like to check tonight?"),
		models.RoleSeer)
	if len(responses) == 0 {
		return
	}

	target := n.roster.ResolveIdentity(responses[0].Content)
	if target == "" {
		return
	}
	p, ok := n.roster.Lookup(target)
	if !ok {
		return
	}
	n.fanout.Notify(ctx,
		n.msg(models.KindSystemNotice, fmt.Sprintf("The role of %s is %s", target, p.Role)),
		models.RoleSeer)
}
