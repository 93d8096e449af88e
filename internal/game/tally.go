package game

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// CollectVotes reduces vote responses to the most-nominated target.
// Contents are trimmed and case-folded before grouping; empty votes are
// dropped. A tie is broken uniformly at random with rng; the tied set
// is sorted first so the draw depends only on the seed, not on arrival
// order. Returns empty when no votes survive filtering.
func CollectVotes(votes []models.Message, rng *rand.Rand) string {
	counts := make(map[string]int)
	for _, vote := range votes {
		target := strings.ToLower(strings.TrimSpace(vote.Content))
		if target == "" {
			continue
		}
		counts[target]++
	}
	if len(counts) == 0 {
		return ""
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	var tied []string
	for target, n := range counts {
		if n == max {
			tied = append(tied, target)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	sort.Strings(tied)
	return tied[rng.Intn(len(tied))]
}

// ResolveVotes replaces each vote's content with the canonical identity
// the roster resolves it to. Votes that resolve to nobody are dropped
// before tallying.
func ResolveVotes(roster *Roster, votes []models.Message) []models.Message {
	out := make([]models.Message, 0, len(votes))
	for _, vote := range votes {
		target := roster.ResolveIdentity(vote.Content)
		if target == "" {
			continue
		}
		vote.Content = target
		out = append(out, vote)
	}
	return out
}

// FilterVoters keeps only votes whose source is an alive participant
// matching role. The tally itself never changes between vote kinds;
// only this predicate does.
func FilterVoters(roster *Roster, votes []models.Message, role models.Role) []models.Message {
	out := make([]models.Message, 0, len(votes))
	for _, vote := range votes {
		p, ok := roster.Lookup(vote.Source)
		if !ok || !p.Alive {
			continue
		}
		if role != models.RoleAny && p.Role != role {
			continue
		}
		out = append(out, vote)
	}
	return out
}
