package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/gateway"
	"github.com/webwizzz/chess-sub000/go/internal/session"
	"github.com/webwizzz/chess-sub000/go/internal/statehttp"
)

// logListener surfaces session events to the log until a UI process is
// attached over the state endpoint.
type logListener struct{}

func (logListener) OnOutcome(out game.Outcome) {
	ev := log.Info().Str("result", string(out.Result)).Str("reason", out.Reason)
	if out.Winner != nil {
		ev = ev.Str("winner", string(*out.Winner))
	}
	ev.Msg(out.Message)
}

func (logListener) OnNotice(level, code, message string) {
	log.Warn().Str("level", level).Str("code", code).Msg(message)
}

func (logListener) OnPossibleMoves(square string, moves []string) {
	log.Info().Str("square", square).Strs("moves", moves).Msg("possible moves")
}

func main() {
	configPath := flag.String("config", "", "path to client config yaml")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(config.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	sessionCfg, err := config.sessionConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid game configuration")
	}

	log.Info().
		Str("game_id", config.Gateway.GameID).
		Str("variant", string(sessionCfg.Variant)).
		Str("color", string(sessionCfg.LocalColor)).
		Msg("starting chess client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The gateway needs the session as its event handler and the session
	// needs the gateway as its sender; the relay breaks the construction
	// cycle.
	relay := &senderRelay{}

	engine := session.New(sessionCfg, relay, logListener{}, clockwork.NewRealClock())
	defer engine.Close()

	sock, err := gateway.Dial(ctx, gateway.DefaultConfig(config.Gateway.URL, config.Gateway.GameID, config.Gateway.PlayerID), engine)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to game service")
	}
	defer sock.Close()
	relay.set(sock)

	go engine.Run(ctx)

	stateSrv := statehttp.New(config.State.ListenAddr, engine)
	go func() {
		if err := stateSrv.Start(); err != nil {
			log.Error().Err(err).Msg("state endpoint failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := stateSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("state endpoint shutdown failed")
	}

	engine.Close()
	sock.Close()
	log.Info().Msg("chess client shutdown complete")
}
