package game

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/transport"
)

// maxConcurrentSends bounds how many round trips one fan-out keeps in
// flight at a time.
const maxConcurrentSends = 8

// Fanout sends the same request to every alive participant matching a
// role. Sends run concurrently but the result sequence is assembled in
// roster order, so tallying and re-broadcast stay deterministic given
// deterministic inputs.
type Fanout struct {
	roster    *Roster
	messenger transport.Messenger
	log       zerolog.Logger
}

// NewFanout wires a fan-out over roster and messenger.
func NewFanout(roster *Roster, messenger transport.Messenger, log zerolog.Logger) *Fanout {
	return &Fanout{
		roster:    roster,
		messenger: messenger,
		log:       log.With().Str("component", "fanout").Logger(),
	}
}

// Collect sends req to every alive participant matching role and
// returns the responses that arrived, in roster order. A delivery
// failure drops that participant from the result set and nothing else:
// a partial quorum is a valid outcome.
func (f *Fanout) Collect(ctx context.Context, req models.Message, role models.Role) []models.Message {
	recipients := f.roster.AliveOfRole(role)
	results := make([]*models.Message, len(recipients))

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentSends)
	for i, p := range recipients {
		i, p := i, p
		g.Go(func() error {
			res, err := f.messenger.Send(ctx, req, p.Identity)
			if err != nil {
				f.log.Warn().Str("recipient", p.Identity).Str("kind", string(req.Kind)).
					Err(err).Msg("delivery failed, excluded from quorum")
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Message, 0, len(recipients))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

// Notify sends msg to every alive participant matching role and
// discards the acknowledgements.
func (f *Fanout) Notify(ctx context.Context, msg models.Message, role models.Role) {
	f.Collect(ctx, msg, role)
}
