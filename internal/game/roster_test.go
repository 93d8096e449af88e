package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronzipp/moonhowl/internal/models"
)

func TestRosterRegisterFillsAllSlots(t *testing.T) {
	r, byRole := buildRoster(t, 1)

	assert.Len(t, byRole[models.RoleWolf], 2)
	assert.Len(t, byRole[models.RoleVillager], 2)
	assert.Len(t, byRole[models.RoleSeer], 1)
	assert.Len(t, byRole[models.RoleWitch], 1)

	// Seventh registration finds no open slot.
	assert.Empty(t, r.Register("grace"))
}

func TestRosterRegisterRejectsDuplicates(t *testing.T) {
	r := NewRoster(classicSlots(), rand.New(rand.NewSource(1)))

	require.NotEmpty(t, r.Register("Alice"))
	assert.Empty(t, r.Register("alice"), "case-insensitive duplicate")
	assert.Empty(t, r.Register("ALICE"))
	assert.Empty(t, r.Register(""))
	assert.Empty(t, r.Register("   "))
	assert.Equal(t, 5, r.OpenSlots())
}

func TestRosterMarkDeadIsIdempotent(t *testing.T) {
	r, _ := buildRoster(t, 2)

	assert.Equal(t, "bob", r.MarkDead("BOB"), "lookup is case-insensitive, result canonical")
	assert.Empty(t, r.MarkDead("bob"), "second mark is a no-op")
	assert.Empty(t, r.MarkDead("nobody"))
	assert.Len(t, r.Survivors(), 5)
}

func TestRosterAliveOfRoleKeepsSlotOrder(t *testing.T) {
	// Slot order is fixed by the SlotSpec list, independent of the
	// order identities arrived in.
	r := NewRoster(classicSlots(), rand.New(rand.NewSource(7)))
	for _, id := range testNames {
		require.NotEmpty(t, r.Register(id))
	}

	all := r.AliveOfRole(models.RoleAny)
	require.Len(t, all, 6)
	assert.Equal(t, models.RoleWolf, all[0].Role)
	assert.Equal(t, models.RoleWolf, all[1].Role)
	assert.Equal(t, models.RoleWitch, all[5].Role)

	wolves := r.AliveOfRole(models.RoleWolf)
	require.Len(t, wolves, 2)
	assert.Equal(t, []string{wolves[0].Identity, wolves[1].Identity}, r.Peers(models.RoleWolf))

	r.MarkDead(wolves[0].Identity)
	assert.Len(t, r.AliveOfRole(models.RoleWolf), 1)
	assert.Len(t, r.Peers(models.RoleWolf), 2, "peers include the dead")
}

func TestRosterResolveIdentity(t *testing.T) {
	r, _ := buildRoster(t, 3)

	assert.Equal(t, "bob", r.ResolveIdentity("bob"))
	assert.Equal(t, "bob", r.ResolveIdentity("  BOB  "))
	assert.Equal(t, "bob", r.ResolveIdentity("I vote for Bob tonight"))
	assert.Empty(t, r.ResolveIdentity("nobody here"))
	assert.Empty(t, r.ResolveIdentity(""))

	r.MarkDead("bob")
	assert.Empty(t, r.ResolveIdentity("bob"), "dead participants do not resolve")
}

func TestRosterResolveIdentityPrefersExactMatch(t *testing.T) {
	specs := []SlotSpec{{Role: models.RoleVillager, Count: 2}}
	r := NewRoster(specs, rand.New(rand.NewSource(1)))
	require.NotEmpty(t, r.Register("alice"))
	require.NotEmpty(t, r.Register("al"))

	// "al" is a substring of "alice", but an exact vote for al must not
	// be stolen by whoever occupies the earlier slot.
	assert.Equal(t, "al", r.ResolveIdentity("al"))
	assert.Equal(t, "alice", r.ResolveIdentity("alice"))
}
