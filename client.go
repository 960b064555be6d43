package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kartlobby/config"
	"kartlobby/content"
	"kartlobby/game"
	gamepackets "kartlobby/game/packets"
	"kartlobby/signaling"
	"kartlobby/webrtc"
)

func clientConfig(cfg config.Config, catalogue *content.Catalogue) game.ClientConfig {
	players := make([]gamepackets.LocalPlayer, len(cfg.Client.Names))
	for i, name := range cfg.Client.Names {
		players[i] = gamepackets.LocalPlayer{Name: name}
	}
	return game.ClientConfig{
		Players:  players,
		Password: cfg.Client.Password,
		Karts:    catalogue.KartNames(),
		Tracks:   catalogue.TrackNames(),
		Tick:     cfg.Lobby.Tick,
	}
}

// bot plays the client side without a user: it picks karts, votes, and
// acknowledges results as soon as they show up.
type bot struct {
	cfg   config.Client
	lobby *game.ClientLobby
	start bool
	stay  bool
}

func (b *bot) onState(ctx context.Context, state game.ClientState) {
	v, err := b.lobby.View(ctx)
	if err != nil {
		return
	}
	switch state {
	case game.Connected:
		if b.start && v.Authorised {
			b.start = false
			b.lobby.RequestStartSelection()
		}
	case game.SelectingKarts:
		b.choose(v)
	case game.RaceFinished:
		for _, id := range v.PlayerIDs {
			log.WithFields(log.Fields{"player": id, "position": v.Positions[id]}).Info("Race finished")
		}
		b.lobby.AckResults()
		if !b.stay {
			b.lobby.Leave()
		}
	}
}

func (b *bot) choose(v game.ClientView) {
	track := b.cfg.Track
	if !slices.Contains(v.Tracks, track) && len(v.Tracks) > 0 {
		track = v.Tracks[0]
	}
	for i, id := range v.PlayerIDs {
		if len(v.Karts) > 0 {
			kart := b.cfg.Kart
			if !slices.Contains(v.Karts, kart) {
				kart = v.Karts[i%len(v.Karts)]
			}
			b.lobby.SelectKart(id, kart)
		}
		if b.cfg.Laps > 0 {
			b.lobby.Vote(gamepackets.VoteLapsPacket{PlayerID: id, Laps: b.cfg.Laps})
		}
		if b.cfg.Reversed {
			b.lobby.Vote(gamepackets.VoteReversedPacket{PlayerID: id, Reversed: true})
		}
		// the track vote goes last; it is what the server counts
		b.lobby.Vote(gamepackets.VoteTrackPacket{PlayerID: id, Track: track})
	}
}

func runClient(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	if cmd.Flags().Changed("url") {
		cfg.Client.ServerURL, _ = cmd.Flags().GetString("url")
	}
	if cmd.Flags().Changed("name") {
		cfg.Client.Names, _ = cmd.Flags().GetStringSlice("name")
	}
	start, _ := cmd.Flags().GetBool("start")
	stay, _ := cmd.Flags().GetBool("stay")

	catalogue, err := content.Load(cfg.Content.Dir)
	if err != nil {
		return errors.Wrap(err, "load content failed")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lobby := game.NewClientLobby(ctx, clientConfig(cfg, catalogue), game.ClientDeps{Builder: simBuilder})
	session, err := signaling.Dial(ctx, cfg.Client.ServerURL, peerOptions(cfg), webrtc.Handler{
		OnMessage: lobby.Receive,
		OnClose:   lobby.Disconnected,
	})
	if err != nil {
		lobby.Shutdown()
		return errors.Wrap(err, "connect to server failed")
	}
	lobby.Link(session)

	b := &bot{cfg: cfg.Client, lobby: lobby, start: start, stay: stay}
	for state := range lobby.Updates() {
		b.onState(ctx, state)
	}
	<-lobby.Done()

	err = lobby.Err()
	var refused game.RefusedError
	switch {
	case errors.As(err, &refused):
		return errors.Wrap(err, "server refused us")
	case errors.Is(err, game.ErrLeft), errors.Is(err, game.ErrLobbyClosed):
		return nil
	default:
		return err
	}
}
