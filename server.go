package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"kartlobby/config"
	"kartlobby/content"
	"kartlobby/directory"
	"kartlobby/discovery"
	"kartlobby/game"
	"kartlobby/results"
	"kartlobby/signaling"
	"kartlobby/webrtc"
	"kartlobby/world"
)

// simBuilder stands in for a full race engine.
var simBuilder = world.SimBuilder{
	LoadDelay:  500 * time.Millisecond,
	RaceLength: 20 * time.Second,
	Spread:     10 * time.Second,
}

func serverConfig(cfg config.Config, catalogue *content.Catalogue) game.ServerConfig {
	tracks := catalogue.TrackNames()
	var first string
	if len(tracks) > 0 {
		first = tracks[0]
	}
	return game.ServerConfig{
		Name:            cfg.Server.Name,
		Password:        cfg.Server.Password,
		MaxPlayers:      cfg.Server.MaxPlayers,
		WAN:             cfg.Server.WAN,
		BannedNames:     cfg.Server.BannedNames,
		ReadyFile:       cfg.Server.ReadyFile,
		Karts:           catalogue.KartNames(),
		Tracks:          tracks,
		DefaultMode:     cfg.Lobby.Mode(),
		DefaultTrack:    cfg.Lobby.DefaultTrack(first),
		Tick:            cfg.Lobby.Tick,
		PingInterval:    cfg.Lobby.PingInterval,
		ResultTimeout:   cfg.Lobby.ResultTimeout,
		JitterTolerance: cfg.Lobby.JitterTolerance,
		MaxPing:         cfg.Lobby.MaxPing,
	}
}

func newRegistrar(cfg config.Config) (directory.Registrar, error) {
	switch cfg.Directory.Kind {
	case "consul":
		return directory.NewConsul(cfg.Directory.Address, cfg.Directory.Service, cfg.Server.Name)
	case "http":
		return directory.NewHTTP(cfg.Directory.Address), nil
	default:
		return directory.None{}, nil
	}
}

func newReporter(cfg config.Config) (results.Reporter, func() error, error) {
	if cfg.Results.Kind != "nats" {
		return results.LogReporter{}, func() error { return nil }, nil
	}
	n, err := results.NewNATS(cfg.Results.URL, cfg.Results.Subject, cfg.Server.Name)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}

// listenPort is the port the signaling endpoint binds, which is the one
// other hosts must be told about.
func listenPort(listen string) (int, error) {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, errors.Wrapf(err, "bad listen address %q", listen)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("listen address %q has no fixed port", listen)
	}
	return n, nil
}

func peerOptions(cfg config.Config) webrtc.Options {
	opts := webrtc.Options{
		PionLevel: log.WarnLevel,
		Rate:      rate.Limit(200),
		Burst:     50,
	}
	if cfg.STUN.Server != "" {
		opts.ICEServers = []string{"stun:" + cfg.STUN.Server}
	}
	return opts
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	if cmd.Flags().Changed("ready-file") {
		cfg.Server.ReadyFile, _ = cmd.Flags().GetString("ready-file")
	}
	if cmd.Flags().Changed("wan") {
		cfg.Server.WAN, _ = cmd.Flags().GetBool("wan")
	}

	catalogue, err := content.Load(cfg.Content.Dir)
	if err != nil {
		return errors.Wrap(err, "load content failed")
	}
	registrar, err := newRegistrar(cfg)
	if err != nil {
		return errors.Wrap(err, "create directory client failed")
	}
	reporter, closeReporter, err := newReporter(cfg)
	if err != nil {
		return errors.Wrap(err, "create result reporter failed")
	}
	defer closeReporter()

	var prober discovery.Prober = discovery.Static(cfg.Server.Listen)
	if cfg.Server.WAN && cfg.STUN.Server != "" {
		port, err := listenPort(cfg.Server.Listen)
		if err != nil {
			return err
		}
		prober = discovery.STUNProber{Server: cfg.STUN.Server, Port: port}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"name":   cfg.Server.Name,
		"karts":  len(catalogue.KartNames()),
		"tracks": len(catalogue.TrackNames()),
		"wan":    cfg.Server.WAN,
	}).Info("Game server starting...")

	lobby := game.NewServerLobby(ctx, serverConfig(cfg, catalogue), game.ServerDeps{
		Builder:   simBuilder,
		Prober:    prober,
		Directory: registrar,
		Reporter:  reporter,
	})

	sig := signaling.NewServer(lobby, peerOptions(cfg))
	defer sig.Close()
	mux := http.NewServeMux()
	mux.Handle("/lobby", sig)
	httpServer := &http.Server{Addr: cfg.Server.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("addr", cfg.Server.Listen).Info("Signaling endpoint running")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Signaling endpoint stopped")
			stop()
		}
	}()

	control := newControlAPI(lobby)
	go func() {
		log.WithField("addr", cfg.Server.Control).Info("Control API running")
		if err := control.Listen(cfg.Server.Control); err != nil {
			log.WithError(err).Error("Control API stopped")
		}
	}()

	<-lobby.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	control.ShutdownWithContext(shutdownCtx)

	if err := lobby.Err(); err != nil && !errors.Is(err, game.ErrLobbyClosed) {
		return errors.Wrap(err, "lobby failed")
	}
	log.Info("Game server stopped")
	return nil
}

// lobbyControl is the part of the server lobby the control API drives.
type lobbyControl interface {
	View(ctx context.Context) (game.ServerView, error)
	StartSelection()
}

func newControlAPI(lobby lobbyControl) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	view := func(c *fiber.Ctx) (game.ServerView, error) {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		return lobby.View(ctx)
	}

	app.Get("/status", func(c *fiber.Ctx) error {
		v, err := view(c)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
		}
		return c.JSON(v)
	})

	app.Get("/players", func(c *fiber.Ctx) error {
		v, err := view(c)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
		}
		return c.JSON(fiber.Map{
			"players": v.Players,
			"pings":   v.Pings,
		})
	})

	app.Get("/votes", func(c *fiber.Ctx) error {
		v, err := view(c)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
		}
		return c.JSON(fiber.Map{
			"votes":  v.Votes,
			"mode":   v.Mode,
			"tracks": v.NextTracks,
		})
	})

	app.Post("/selection/start", func(c *fiber.Ctx) error {
		v, err := view(c)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
		}
		if v.State != game.AcceptingClients || len(v.Players) == 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"state": v.State, "players": len(v.Players)})
		}
		lobby.StartSelection()
		return c.SendStatus(fiber.StatusAccepted)
	})

	return app
}
