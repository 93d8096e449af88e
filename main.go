package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/aaronzipp/moonhowl/internal/auth"
	"github.com/aaronzipp/moonhowl/internal/chain"
	"github.com/aaronzipp/moonhowl/internal/config"
	"github.com/aaronzipp/moonhowl/internal/game"
	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/transport"
)

// taskPrice is the on-chain price a session task is created with.
const taskPrice = 1_000_000

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	env, err := config.ParseEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("environment is incomplete")
	}
	setup, err := config.LoadGame(env.GameFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", env.GameFile).Msg("game config is invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Chain setup: register the moderator identity and open the session
	// task. Joins are verified against the same chain unless disabled
	// for local play.
	var verifier transport.JoinAuthorizer
	var chainClient *chain.EthClient
	if !env.SkipChain {
		signer, err := chain.NewSigner(env.SecretKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("wallet key is invalid")
		}
		chainClient, err = chain.Dial(ctx, env.ChainRPC, env.ContractAddr, signer, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("chain is unreachable")
		}
		defer chainClient.Close()

		if err := chainClient.RegisterAgent(ctx, env.AgentID); err != nil {
			logger.Fatal().Err(err).Str("agent", env.AgentID).Msg("agent registration failed")
		}
		logger.Info().Str("agent", env.AgentID).Msg("moderator registered on chain")

		if err := chainClient.CreateTask(ctx, env.TaskID, taskPrice); err != nil {
			logger.Fatal().Err(err).Str("task", env.TaskID).Msg("task creation failed")
		}
		logger.Info().Str("task", env.TaskID).Msg("session task created on chain")

		verifier = auth.NewVerifier(chainClient, logger)
	}

	hub := transport.NewHub(env.TaskID, verifier, setup.SendTimeout.Std(), logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/join", hub)
	server := &http.Server{Addr: env.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen failed")
		}
	}()
	defer server.Shutdown(context.Background())

	joinURL := "ws://" + env.JoinAddr() + "/join"
	logger.Info().Str("url", joinURL).Msg("lobby open")
	if env.JoinQRPath != "" {
		if err := qrcode.WriteFile(joinURL, qrcode.Medium, 256, env.JoinQRPath); err != nil {
			logger.Warn().Err(err).Msg("join QR not written")
		}
	}

	seed := setup.Seed
	if seed == 0 {
		if seed, err = game.NewSeed(); err != nil {
			logger.Fatal().Err(err).Msg("seed generation failed")
		}
	}

	slots := make([]game.SlotSpec, 0, len(setup.Roles))
	for _, rs := range setup.Roles {
		slots = append(slots, game.SlotSpec{Role: models.Role(rs.Role), Count: rs.Count})
	}

	engine, err := game.New(game.Config{
		ModeratorID:         env.AgentID,
		Slots:               slots,
		RegistrationTimeout: setup.RegistrationTimeout.Std(),
		RegistrationPoll:    setup.RegistrationPoll.Std(),
		MaxRounds:           setup.MaxRounds,
		Rand:                rand.New(rand.NewSource(seed)),
		Logger:              logger,
	}, hub)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine setup failed")
	}

	outcome, err := engine.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("game aborted")
		return
	}
	logger.Info().Str("outcome", outcome.String()).Msg("session finished")

	// Settle the task in favor of a surviving member of the winning
	// faction.
	if chainClient != nil && outcome != game.OutcomeNone {
		winners := engine.Roster().AliveOfRole(models.RoleWolf)
		if outcome == game.OutcomeVillageWins {
			winners = engine.Roster().AliveOfRole(models.RoleAny)
		}
		if len(winners) > 0 {
			winner := winners[0].Identity
			if err := chainClient.FinishTask(ctx, env.TaskID, winner); err != nil {
				logger.Warn().Err(err).Str("winner", winner).Msg("task settlement failed")
			} else {
				logger.Info().Str("winner", winner).Msg("task settled on chain")
			}
		}
	}
}
