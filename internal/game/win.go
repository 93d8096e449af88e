package game

import "github.com/aaronzipp/moonhowl/internal/models"

// Outcome is the result of a win evaluation.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWolvesWin
	OutcomeVillageWins
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWolvesWin:
		return "wolf win"
	case OutcomeVillageWins:
		return "village win"
	default:
		return "no winner"
	}
}

// EvaluateWin inspects the roster's alive counts. Wolves win as soon as
// they make up at least half of the living players, parity included;
// the village wins when no wolf is left. The >= comparison is load
// bearing and must not be tightened to >.
func EvaluateWin(r *Roster) Outcome {
	wolves, alive := 0, 0
	for _, p := range r.participants {
		if !p.Alive {
			continue
		}
		alive++
		if p.Role == models.RoleWolf {
			wolves++
		}
	}

	if wolves*2 >= alive {
		return OutcomeWolvesWin
	}
	if wolves == 0 {
		return OutcomeVillageWins
	}
	return OutcomeNone
}
