package game

import (
	"context"
	"maps"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"kartlobby/game/latency"
	gamepackets "kartlobby/game/packets"
	"kartlobby/game/setup"
	"kartlobby/game/vote"
	"kartlobby/world"
)

type ClientConfig struct {
	Players  []gamepackets.LocalPlayer
	Password string
	Karts    []string
	Tracks   []string

	Tick time.Duration
}

type ClientDeps struct {
	Builder       world.Builder
	RaceProtocols RaceProtocols
}

type linked struct{ peer Peer }
type transportLost struct{}
type leave struct{}
type sendRequest struct{ packet gamepackets.Packet }

func (linked) isLobbyMsg()        {}
func (transportLost) isLobbyMsg() {}
func (leave) isLobbyMsg()         {}
func (sendRequest) isLobbyMsg()   {}

// ClientView is a snapshot of the client's copy of the lobby.
type ClientView struct {
	State         ClientState
	PlayerIDs     []uint8
	HostID        uint8
	Authorised    bool
	Players       []setup.PlayerProfile
	LocalMaster   uint8
	KartScreen    map[uint8]string
	Votes         map[uint8]vote.RaceVote
	Karts         []string
	Tracks        []string
	Positions     map[uint8]int
	Refused       *gamepackets.RefusalReason
	KartRefusals  []gamepackets.KartSelectionRefusedPacket
	RaceProtocols int
}

// ClientLobby is the client side of the lobby room protocol. It mirrors the
// server's roster and vote table by applying the server's broadcasts.
type ClientLobby struct {
	lobby
	cfg  ClientConfig
	deps ClientDeps

	state      ClientState
	peer       Peer
	token      uint32
	playerIDs  []uint8
	hostID     uint8
	authorised bool
	setup      *setup.GameSetup

	karts        []string
	tracks       []string
	defaultMode  vote.Mode
	defaultTrack vote.Track
	kartScreen   map[uint8]string
	refused      *gamepackets.RefusalReason
	kartRefusals []gamepackets.KartSelectionRefusedPacket

	match         uint64
	world         world.World
	positions     map[uint8]int
	acked         bool
	raceProtocols []SubProtocol

	updates chan ClientState
}

func NewClientLobby(parent context.Context, cfg ClientConfig, deps ClientDeps) *ClientLobby {
	if deps.Builder == nil {
		deps.Builder = world.SimBuilder{}
	}
	if deps.RaceProtocols == nil {
		deps.RaceProtocols = DefaultRaceProtocols
	}
	l := &ClientLobby{
		lobby:      newLobby(parent, "client"),
		cfg:        cfg,
		deps:       deps,
		setup:      setup.New(),
		kartScreen: make(map[uint8]string),
		updates:    make(chan ClientState, 16),
	}
	go l.loop()
	return l
}

// Link hands the lobby its transport once it is connected. The handshake
// is sent on the next tick.
func (l *ClientLobby) Link(peer Peer) {
	l.post(linked{peer: peer})
}

func (l *ClientLobby) Receive(data []byte) {
	l.post(packetReceived{data: data})
}

// Disconnected reports that the transport is gone.
func (l *ClientLobby) Disconnected() {
	l.post(transportLost{})
}

// Leave closes the connection on purpose.
func (l *ClientLobby) Leave() {
	l.post(leave{})
}

// Updates delivers every state the client enters. Slow readers miss states;
// the channel is closed when the client exits.
func (l *ClientLobby) Updates() <-chan ClientState {
	return l.updates
}

func (l *ClientLobby) RequestStartSelection() {
	l.post(sendRequest{packet: gamepackets.RequestStartSelectionPacket{}})
}

func (l *ClientLobby) SelectKart(playerID uint8, kart string) {
	l.post(sendRequest{packet: gamepackets.KartSelectionRequestedPacket{PlayerID: playerID, Kart: kart}})
}

// Vote sends a vote for one of our players. The local table only changes
// when the server echoes it back.
func (l *ClientLobby) Vote(v gamepackets.VotePacket) {
	l.post(sendRequest{packet: v})
}

// AckResults tells the server we are done looking at the results.
func (l *ClientLobby) AckResults() {
	l.post(sendRequest{packet: gamepackets.RaceFinishedAckPacket{}})
}

func (l *ClientLobby) View(ctx context.Context) (ClientView, error) {
	v, err := l.lobby.view(ctx)
	if err != nil {
		return ClientView{}, err
	}
	return v.(ClientView), nil
}

func (l *ClientLobby) loop() {
	defer close(l.done)
	defer close(l.updates)

	tick, stopTick := schedule(l.cfg.Tick)
	defer stopTick()

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-tick:
			if l.update() {
				return
			}

		case m := <-l.inbox:
			switch msg := m.(type) {
			case linked:
				l.onLinked(msg.peer)
			case packetReceived:
				l.onPacket(msg.data)
			case transportLost:
				l.onTransportLost()
			case leave:
				l.onLeave()
			case sendRequest:
				l.onSendRequest(msg.packet)
			case worldLoaded:
				l.onWorldLoaded(msg)
			case runFunc:
				msg.f()
			case getView:
				msg.reply <- l.snapshot()
			}
		}
	}
}

func (l *ClientLobby) setState(s ClientState) {
	if l.state == s {
		return
	}
	l.log.WithFields(log.Fields{"from": l.state, "to": s}).Info("Client state changed")
	l.state = s
	select {
	case l.updates <- s:
	default:
	}
}

// update drives the edges the client owns. It reports true once the
// client has exited.
func (l *ClientLobby) update() bool {
	switch l.state {
	case Linked:
		l.requestConnection()
	case KartSelection:
		l.setState(SelectingKarts)
	case Done:
		l.setState(ClientExiting)
		l.stopRace()
		l.cancel()
		return true
	}
	return false
}

func (l *ClientLobby) shutdown() {
	l.stopRace()
	if l.peer != nil && l.state < Done {
		l.peer.Close()
	}
	if l.err == nil {
		l.err = ErrLobbyClosed
	}
	l.setState(ClientExiting)
}

func (l *ClientLobby) onLinked(peer Peer) {
	if l.state != None {
		l.log.Warn("Already linked")
		return
	}
	l.peer = peer
	l.setState(Linked)
}

func (l *ClientLobby) requestConnection() {
	err := send(l.peer, 0, gamepackets.ConnectionRequestedPacket{
		Players:  l.cfg.Players,
		Password: l.cfg.Password,
		Karts:    l.cfg.Karts,
		Tracks:   l.cfg.Tracks,
	})
	if err != nil {
		l.log.WithError(err).Warn("Could not send connection request")
		return
	}
	l.setState(RequestingConnection)
}

func (l *ClientLobby) onPacket(data []byte) {
	frame, ok := l.decode("server", data)
	if !ok {
		return
	}
	packet, ok := frame.Packet.(gamepackets.ClientPacket)
	if !ok {
		l.log.WithField("type", frame.Packet.Type()).Warn("Dropping server-bound packet")
		return
	}

	switch packet.Type() {
	case gamepackets.ConnectionAccepted, gamepackets.ConnectionRefused:
		if l.state != RequestingConnection {
			l.log.WithFields(log.Fields{"type": packet.Type(), "state": l.state}).Warn("Unexpected connection reply")
			return
		}
	default:
		if l.state < Connected || l.state >= Done {
			l.log.WithFields(log.Fields{"type": packet.Type(), "state": l.state}).Warn("Dropping packet before connection")
			return
		}
		if frame.Token != l.token {
			l.log.WithField("type", packet.Type()).Warn("Dropping packet with bad token")
			return
		}
	}
	packet.DispatchClient(l)
}

func (l *ClientLobby) onSendRequest(p gamepackets.Packet) {
	if l.state < Connected || l.state >= Done {
		l.log.WithFields(log.Fields{"type": p.Type(), "state": l.state}).Warn("Not connected, dropping request")
		return
	}
	switch pkt := p.(type) {
	case gamepackets.VotePacket:
		if !slices.Contains(l.playerIDs, pkt.Voter()) {
			l.log.WithField("player", pkt.Voter()).Warn("Refusing to vote for another player")
			return
		}
	case gamepackets.RaceFinishedAckPacket:
		if l.state != RaceFinished || l.acked {
			return
		}
		l.acked = true
	}
	if err := send(l.peer, l.token, p); err != nil {
		l.log.WithError(err).Warn("Send failed")
	}
}

func (l *ClientLobby) OnConnectionAccepted(p gamepackets.ConnectionAcceptedPacket) {
	l.token = p.Token
	l.playerIDs = slices.Clone(p.PlayerIDs)
	l.hostID = p.HostID
	l.authorised = p.Authorised

	// remote players first, then our own
	for _, profile := range p.Roster {
		l.setup.AddPlayer(profile)
		if profile.Kart != "" {
			l.kartScreen[profile.GlobalPlayerID] = profile.Kart
		}
	}
	for i, id := range p.PlayerIDs {
		var lp gamepackets.LocalPlayer
		if i < len(l.cfg.Players) {
			lp = l.cfg.Players[i]
		}
		l.setup.AddPlayer(setup.PlayerProfile{
			GlobalPlayerID: id,
			HostID:         p.HostID,
			Name:           lp.Name,
			LocalMaster:    i == 0,
			Difficulty:     lp.Difficulty,
		})
	}
	if len(p.PlayerIDs) > 0 {
		l.setup.SetLocalMaster(p.PlayerIDs[0])
	}
	for _, v := range p.Votes {
		v.Apply(l.setup.Votes())
	}
	l.log.WithFields(log.Fields{"host": p.HostID, "players": p.PlayerIDs, "authorised": p.Authorised}).Info("Connected to server")
	l.setState(Connected)
}

func (l *ClientLobby) OnConnectionRefused(p gamepackets.ConnectionRefusedPacket) {
	reason := p.Reason
	l.refused = &reason
	l.err = RefusedError{Reason: reason}
	l.log.WithField("reason", reason).Warn("Connection refused")
	l.peer.Close()
	l.setState(Done)
}

func (l *ClientLobby) OnNewPlayerConnected(p gamepackets.NewPlayerConnectedPacket) {
	l.setup.AddPlayer(p.Player)
}

func (l *ClientLobby) OnPlayerDisconnected(p gamepackets.PlayerDisconnectedPacket) {
	l.setup.RemovePlayer(p.PlayerID)
	delete(l.kartScreen, p.PlayerID)
}

func (l *ClientLobby) OnStartSelection(p gamepackets.StartSelectionPacket) {
	if l.state != Connected {
		l.log.WithField("state", l.state).Warn("Unexpected start selection")
		return
	}
	l.karts = slices.Clone(p.Karts)
	l.tracks = slices.Clone(p.Tracks)
	l.defaultMode = p.DefaultMode
	l.defaultTrack = p.DefaultTrack
	l.setup.Votes().NewRound()
	l.setState(KartSelection)
}

func (l *ClientLobby) OnKartSelectionUpdate(p gamepackets.KartSelectionUpdatePacket) {
	l.setup.SetPlayerKart(p.PlayerID, p.Kart)
	l.kartScreen[p.PlayerID] = p.Kart
}

func (l *ClientLobby) OnKartSelectionRefused(p gamepackets.KartSelectionRefusedPacket) {
	l.log.WithFields(log.Fields{"player": p.PlayerID, "reason": p.Reason}).Warn("Kart selection refused")
	l.kartRefusals = append(l.kartRefusals, p)
}

func (l *ClientLobby) OnVote(v gamepackets.VotePacket) {
	v.Apply(l.setup.Votes())
}

func (l *ClientLobby) OnLoadWorld(gamepackets.LoadWorldPacket) {
	if l.state != KartSelection && l.state != SelectingKarts {
		l.log.WithField("state", l.state).Warn("Unexpected load world")
		return
	}
	mode := l.setup.Votes().ComputeRaceMode(l.defaultMode)
	s := world.Setup{
		Mode:    mode,
		Tracks:  l.setup.Votes().ComputeTracks(mode.Slots(), l.defaultTrack),
		Players: l.setup.Players(),
	}
	l.match++
	l.loadWorld(l.deps.Builder, s, l.match)
}

func (l *ClientLobby) onWorldLoaded(msg worldLoaded) {
	if msg.match != l.match || (l.state != KartSelection && l.state != SelectingKarts) {
		return
	}
	if msg.err != nil {
		// The server waits for everybody, so there is nothing to do but leave.
		l.log.WithError(msg.err).Error("Could not load world")
		l.err = ErrWorldLoad
		l.onLeave()
		return
	}
	l.world = msg.world
	if err := send(l.peer, l.token, gamepackets.ClientLoadedWorldPacket{PlayerIDs: l.playerIDs}); err != nil {
		l.log.WithError(err).Warn("Send failed")
	}
}

func (l *ClientLobby) OnStartRace(gamepackets.StartRacePacket) {
	if l.world == nil {
		l.log.Warn("Race start without a loaded world")
		return
	}
	l.world.Start()
	l.raceProtocols = l.deps.RaceProtocols()
	l.positions = nil
	l.acked = false
	l.setState(Playing)
	if err := send(l.peer, l.token, gamepackets.StartedRacePacket{}); err != nil {
		l.log.WithError(err).Warn("Send failed")
	}
}

func (l *ClientLobby) OnRaceFinished(p gamepackets.RaceFinishedPacket) {
	if l.state != Playing {
		l.log.WithField("state", l.state).Warn("Unexpected race finished")
		return
	}
	l.world.Freeze()
	l.world.SetKartPositions(p.Order)
	l.positions = make(map[uint8]int, len(p.Order))
	for i, kart := range p.Order {
		l.positions[kart] = i + 1
	}
	stopProtocols(l.raceProtocols)
	l.raceProtocols = nil
	l.setState(RaceFinished)
}

func (l *ClientLobby) OnExitResultScreen(gamepackets.ExitResultScreenPacket) {
	l.stopRace()
	l.setup.ClearKarts()
	clear(l.kartScreen)
	l.setState(Connected)
}

func (l *ClientLobby) OnPing(p gamepackets.PingPacket) {
	if err := sendUnreliable(l.peer, l.token, latency.Echo(p)); err != nil {
		l.log.WithError(err).Debug("Pong failed")
	}
}

func (l *ClientLobby) stopRace() {
	stopProtocols(l.raceProtocols)
	l.raceProtocols = nil
	if l.world != nil {
		l.world.Freeze()
		l.world = nil
	}
}

func (l *ClientLobby) onTransportLost() {
	if l.state >= Done {
		return
	}
	l.log.Warn("Lost connection to server")
	if l.err == nil {
		l.err = ErrDisconnected
	}
	l.setState(Done)
}

func (l *ClientLobby) onLeave() {
	if l.state >= Done {
		return
	}
	if l.err == nil {
		l.err = ErrLeft
	}
	if l.peer != nil {
		l.peer.Close()
	}
	l.setState(Done)
}

func (l *ClientLobby) snapshot() ClientView {
	v := ClientView{
		State:         l.state,
		PlayerIDs:     slices.Clone(l.playerIDs),
		HostID:        l.hostID,
		Authorised:    l.authorised,
		Players:       l.setup.Players(),
		LocalMaster:   l.setup.LocalMaster(),
		KartScreen:    maps.Clone(l.kartScreen),
		Votes:         make(map[uint8]vote.RaceVote),
		Karts:         slices.Clone(l.karts),
		Tracks:        slices.Clone(l.tracks),
		Positions:     maps.Clone(l.positions),
		Refused:       l.refused,
		KartRefusals:  slices.Clone(l.kartRefusals),
		RaceProtocols: len(l.raceProtocols),
	}
	for _, id := range l.setup.Votes().Voters() {
		v.Votes[id], _ = l.setup.Votes().Get(id)
	}
	return v
}
