// Package game is the moderator's orchestration core: the roster of
// role slots, vote tallying, the night and day pipelines, win
// evaluation, and the phase state machine that drives them.
package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// SlotSpec declares how many roster slots one role gets.
type SlotSpec struct {
	Role  models.Role
	Count int
}

// Roster holds the fixed role slots for one game. It is owned by the
// engine loop: registration and death mutations happen only there, so
// no internal locking is needed.
type Roster struct {
	participants []*models.Participant
	open         []int
	rng          *rand.Rand
}

// NewRoster builds a roster with one slot per role occurrence, in spec
// order. rng drives random slot assignment at registration.
func NewRoster(specs []SlotSpec, rng *rand.Rand) *Roster {
	r := &Roster{rng: rng}
	for _, spec := range specs {
		for i := 0; i < spec.Count; i++ {
			r.open = append(r.open, len(r.participants))
			r.participants = append(r.participants, &models.Participant{Role: spec.Role})
		}
	}
	return r
}

// Register assigns identity to a uniformly random open slot and returns
// its role. It returns the empty role when the identity is already
// present (case-insensitive) or no open slot remains.
func (r *Roster) Register(identity string) models.Role {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ""
	}
	for _, p := range r.participants {
		if p.Identity != "" && strings.EqualFold(p.Identity, identity) {
			return ""
		}
	}
	if len(r.open) == 0 {
		return ""
	}

	i := r.rng.Intn(len(r.open))
	slot := r.open[i]
	r.open = append(r.open[:i], r.open[i+1:]...)

	p := r.participants[slot]
	p.Identity = identity
	p.Alive = true
	return p.Role
}

// MarkDead transitions identity to dead and returns the canonical
// stored identity. It returns empty when the identity is unknown or
// already dead, so calling it twice is a no-op.
func (r *Roster) MarkDead(identity string) string {
	if identity == "" {
		return ""
	}
	for _, p := range r.participants {
		if p.Alive && strings.EqualFold(p.Identity, identity) {
			p.Alive = false
			return p.Identity
		}
	}
	return ""
}

// AliveOfRole returns copies of the alive participants matching role,
// in slot order. models.RoleAny matches every role.
func (r *Roster) AliveOfRole(role models.Role) []models.Participant {
	var out []models.Participant
	for _, p := range r.participants {
		if !p.Alive {
			continue
		}
		if role != models.RoleAny && p.Role != role {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Survivors lists the identities of all alive participants in slot
// order.
func (r *Roster) Survivors() []string {
	alive := r.AliveOfRole(models.RoleAny)
	out := make([]string, 0, len(alive))
	for _, p := range alive {
		out = append(out, p.Identity)
	}
	return out
}

// Peers lists the registered identities holding role, alive or not.
// Used to reveal teammate identities right after the lobby fills.
func (r *Roster) Peers(role models.Role) []string {
	var out []string
	for _, p := range r.participants {
		if p.Identity != "" && p.Role == role {
			out = append(out, p.Identity)
		}
	}
	return out
}

// Lookup resolves identity case-insensitively to its participant.
func (r *Roster) Lookup(identity string) (models.Participant, bool) {
	if identity == "" {
		return models.Participant{}, false
	}
	for _, p := range r.participants {
		if p.Identity != "" && strings.EqualFold(p.Identity, identity) {
			return *p, true
		}
	}
	return models.Participant{}, false
}

// OpenSlots reports how many slots are still unfilled.
func (r *Roster) OpenSlots() int { return len(r.open) }

// ResolveIdentity maps free text to a canonical alive identity. An
// exact case-insensitive match wins first; otherwise the first alive
// participant (in slot order) whose identity appears as a substring of
// the text wins. The substring pass is a deliberate compatibility
// heuristic and can be ambiguous when identities nest inside each
// other; the exact pass keeps a vote that names a short identity from
// being stolen by a longer one containing it.
func (r *Roster) ResolveIdentity(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}
	for _, p := range r.participants {
		if p.Alive && strings.ToLower(p.Identity) == text {
			return p.Identity
		}
	}
	for _, p := range r.participants {
		if p.Alive && strings.Contains(text, strings.ToLower(p.Identity)) {
			return p.Identity
		}
	}
	return ""
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
