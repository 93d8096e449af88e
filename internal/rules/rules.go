// Package rules declares the contract for an embedded sub-game's rules
// engine. The moderator treats it as a black box: it relays prompt text
// to the side to move, feeds replies back in, and asks whether the game
// is over. Board mechanics never leak into the orchestration layer.
package rules

// Engine is the opaque rules collaborator for a two-sided sub-game.
type Engine interface {
	// Sides returns the two side names in move order.
	Sides() [2]string
	// Prompt renders the current state and legal moves for side.
	Prompt(side string) string
	// Apply parses side's reply and applies the move, returning a
	// human-readable result or an error when the move is illegal.
	Apply(side, reply string) (string, error)
	// Outcome reports ("", false) while the game runs. Once over, it
	// returns the winning side, or an empty winner for a draw.
	Outcome() (winner string, over bool)
}
