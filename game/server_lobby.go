package game

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"os"
	"slices"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kartlobby/directory"
	"kartlobby/discovery"
	"kartlobby/game/latency"
	gamepackets "kartlobby/game/packets"
	"kartlobby/game/setup"
	"kartlobby/game/vote"
	"kartlobby/results"
	"kartlobby/world"
)

type ServerConfig struct {
	Name        string
	Password    string
	MaxPlayers  int
	WAN         bool
	BannedNames []string
	ReadyFile   string

	Karts  []string
	Tracks []string

	DefaultMode  vote.Mode
	DefaultTrack vote.Track

	Tick            time.Duration
	PingInterval    time.Duration
	ResultTimeout   time.Duration
	JitterTolerance time.Duration
	MaxPing         time.Duration
}

// ServerDeps are the collaborators the server reaches outside the lobby.
// Nil fields get harmless defaults.
type ServerDeps struct {
	Builder       world.Builder
	Prober        discovery.Prober
	Directory     directory.Registrar
	Reporter      results.Reporter
	RaceProtocols RaceProtocols
}

type peerRecord struct {
	peer       Peer
	accepted   bool
	hostID     uint8
	token      uint32
	authorised bool
	started    bool
	acked      bool
}

type peerConnected struct{ peer Peer }
type peerDisconnected struct{ peerID string }
type startSelection struct{}

func (peerConnected) isLobbyMsg()    {}
func (peerDisconnected) isLobbyMsg() {}
func (startSelection) isLobbyMsg()   {}

// ServerView is a snapshot of the server lobby for inspection.
type ServerView struct {
	State         ServerState              `json:"state"`
	PublicAddress string                   `json:"publicAddress,omitempty"`
	Players       []setup.PlayerProfile    `json:"players"`
	Votes         map[uint8]vote.RaceVote  `json:"votes"`
	Karts         []string                 `json:"karts"`
	Tracks        []string                 `json:"tracks"`
	Mode          vote.Mode                `json:"mode"`
	NextTracks    []vote.Track             `json:"nextTracks"`
	ServerLoaded  bool                     `json:"serverLoaded"`
	ReadyPlayers  int                      `json:"readyPlayers"`
	Pings         map[string]time.Duration `json:"pings"`
	LastResult    []uint8                  `json:"lastResult,omitempty"`
	RaceProtocols int                      `json:"raceProtocols"`
}

// ServerLobby is the authoritative lobby. All state lives on one goroutine
// and every change arrives through its inbox.
type ServerLobby struct {
	lobby
	cfg  ServerConfig
	deps ServerDeps

	state         ServerState
	setup         *setup.GameSetup
	peers         map[string]*peerRecord
	peerOrder     []string
	nextPlayerID  uint8
	nextHostID    uint8
	karts         []string
	tracks        []string
	publicAddress string
	readyWritten  bool

	latency       *latency.Tracker
	latencyActive bool

	match         uint64
	matchSetup    world.Setup
	world         world.World
	serverLoaded  bool
	readyPlayers  map[uint8]bool
	delayGen      uint64
	resultGen     uint64
	resultTimer   *time.Timer
	lastResult    []uint8
	raceProtocols []SubProtocol
}

func NewServerLobby(parent context.Context, cfg ServerConfig, deps ServerDeps) *ServerLobby {
	if deps.Builder == nil {
		deps.Builder = world.SimBuilder{}
	}
	if deps.Prober == nil {
		deps.Prober = discovery.Static("")
	}
	if deps.Directory == nil {
		deps.Directory = directory.None{}
	}
	if deps.Reporter == nil {
		deps.Reporter = results.LogReporter{}
	}
	if deps.RaceProtocols == nil {
		deps.RaceProtocols = DefaultRaceProtocols
	}

	l := &ServerLobby{
		lobby:         newLobby(parent, "server"),
		cfg:           cfg,
		deps:          deps,
		setup:         setup.New(),
		peers:         make(map[string]*peerRecord),
		nextHostID:    1,
		karts:         slices.Clone(cfg.Karts),
		tracks:        slices.Clone(cfg.Tracks),
		latency:       latency.NewTracker(),
		latencyActive: true,
		readyPlayers:  make(map[uint8]bool),
	}
	go l.loop()
	return l
}

// Connect registers a new transport peer. It must send ConnectionRequested
// before anything else is accepted from it.
func (l *ServerLobby) Connect(peer Peer) {
	l.post(peerConnected{peer: peer})
}

func (l *ServerLobby) Disconnect(peerID string) {
	l.post(peerDisconnected{peerID: peerID})
}

func (l *ServerLobby) Receive(peerID string, data []byte) {
	l.post(packetReceived{peerID: peerID, data: data})
}

// StartSelection opens kart and track selection as the server operator.
func (l *ServerLobby) StartSelection() {
	l.post(startSelection{})
}

func (l *ServerLobby) View(ctx context.Context) (ServerView, error) {
	v, err := l.lobby.view(ctx)
	if err != nil {
		return ServerView{}, err
	}
	return v.(ServerView), nil
}

func (l *ServerLobby) loop() {
	defer close(l.done)

	tick, stopTick := schedule(l.cfg.Tick)
	defer stopTick()
	pings, stopPings := schedule(l.cfg.PingInterval)
	defer stopPings()

	l.begin()
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-tick:
			l.update()

		case now := <-pings:
			l.sendPings(now)

		case m := <-l.inbox:
			switch msg := m.(type) {
			case peerConnected:
				l.onPeerConnected(msg.peer)
			case peerDisconnected:
				l.onPeerDisconnected(msg.peerID)
			case packetReceived:
				l.onPacket(msg.peerID, msg.data)
			case startSelection:
				l.startSelection()
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

func (l *ServerLobby) setState(s ServerState) {
	if l.state == s {
		return
	}
	l.log.WithFields(log.Fields{"from": l.state, "to": s}).Info("Server state changed")
	l.state = s
}

func (l *ServerLobby) begin() {
	if !l.cfg.WAN {
		l.setState(AcceptingClients)
		l.writeReadyFile()
		return
	}
	l.setState(SetPublicAddress)
	l.async(func(ctx context.Context) lobbyMsg {
		addr, err := l.deps.Prober.PublicAddress(ctx)
		return runFunc{f: func() { l.onAddressDiscovered(addr, err) }}
	})
}

func (l *ServerLobby) onAddressDiscovered(addr string, err error) {
	if l.state != SetPublicAddress {
		return
	}
	if err != nil {
		l.errorLeave(errors.WithMessage(ErrPublicAddress, err.Error()))
		return
	}
	l.publicAddress = addr
	l.registerSelf()
}

func (l *ServerLobby) registerSelf() {
	l.setState(RegisterSelfAddress)
	entry := directory.Entry{
		Name:       l.cfg.Name,
		Address:    l.publicAddress,
		Players:    l.setup.PlayerCount(),
		MaxPlayers: l.cfg.MaxPlayers,
		Password:   l.cfg.Password != "",
	}
	l.async(func(ctx context.Context) lobbyMsg {
		err := l.deps.Directory.Register(ctx, entry)
		return runFunc{f: func() { l.onRegistered(err) }}
	})
}

func (l *ServerLobby) onRegistered(err error) {
	if l.state != RegisterSelfAddress {
		return
	}
	if err != nil {
		l.errorLeave(errors.WithMessage(ErrRegistration, err.Error()))
		return
	}
	l.writeReadyFile()
	l.setState(AcceptingClients)
}

// writeReadyFile tells a local launcher that the server is up.
func (l *ServerLobby) writeReadyFile() {
	if l.cfg.ReadyFile == "" || l.readyWritten {
		return
	}
	if err := os.WriteFile(l.cfg.ReadyFile, []byte(l.publicAddress+"\n"), 0o644); err != nil {
		l.log.WithError(err).Warn("Could not write ready file")
		return
	}
	l.readyWritten = true
}

func (l *ServerLobby) errorLeave(err error) {
	l.setState(ErrorLeave)
	l.err = err
	l.log.WithError(err).Error("Server lobby failed, shutting down")
	l.cancel()
}

func (l *ServerLobby) shutdown() {
	if l.state != ErrorLeave {
		l.err = ErrLobbyClosed
	}
	l.stopRace()
	for _, id := range l.peerOrder {
		l.peers[id].peer.Close()
	}
	if l.cfg.WAN && l.state >= AcceptingClients && l.state != ErrorLeave {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := l.deps.Directory.Unregister(ctx); err != nil {
			l.log.WithError(err).Warn("Could not unregister on shutdown")
		}
		cancel()
	}
	if l.readyWritten {
		os.Remove(l.cfg.ReadyFile)
	}
	l.setState(Exiting)
}

func (l *ServerLobby) update() {
	if l.state == Racing && l.world != nil && l.world.IsRaceOver() {
		l.finishRace()
	}
}

func (l *ServerLobby) onPeerConnected(peer Peer) {
	if _, ok := l.peers[peer.ID()]; ok {
		l.log.WithField("peer", peer.ID()).Warn("Peer connected twice")
		return
	}
	l.peers[peer.ID()] = &peerRecord{peer: peer}
	l.peerOrder = append(l.peerOrder, peer.ID())
	l.log.WithField("peer", peer.ID()).Debug("Peer linked")
}

func (l *ServerLobby) onPacket(peerID string, data []byte) {
	rec, ok := l.peers[peerID]
	if !ok {
		l.log.WithField("peer", peerID).Warn("Packet from unknown peer")
		return
	}
	frame, ok := l.decode(peerID, data)
	if !ok {
		return
	}
	packet, ok := frame.Packet.(gamepackets.ServerPacket)
	if !ok {
		l.log.WithFields(log.Fields{"peer": peerID, "type": frame.Packet.Type()}).Warn("Dropping client-bound packet")
		return
	}
	if packet.Type() != gamepackets.ConnectionRequested {
		if !rec.accepted || frame.Token != rec.token {
			l.log.WithFields(log.Fields{"peer": peerID, "type": packet.Type()}).Warn("Dropping packet with bad token")
			return
		}
	}
	packet.DispatchServer(l, peerID)
}

func (l *ServerLobby) sendTo(rec *peerRecord, p gamepackets.Packet) {
	if err := send(rec.peer, rec.token, p); err != nil {
		l.log.WithError(err).WithField("peer", rec.peer.ID()).Warn("Send failed")
	}
}

// broadcast sends p to every accepted peer in connection order.
func (l *ServerLobby) broadcast(p gamepackets.Packet) {
	for _, id := range l.peerOrder {
		if rec := l.peers[id]; rec.accepted {
			l.sendTo(rec, p)
		}
	}
}

func (l *ServerLobby) accepted() []*peerRecord {
	var out []*peerRecord
	for _, id := range l.peerOrder {
		if rec := l.peers[id]; rec.accepted {
			out = append(out, rec)
		}
	}
	return out
}

func (l *ServerLobby) refuse(rec *peerRecord, reason gamepackets.RefusalReason) {
	l.log.WithFields(log.Fields{"peer": rec.peer.ID(), "reason": reason}).Info("Refusing connection")
	if err := send(rec.peer, 0, gamepackets.ConnectionRefusedPacket{Reason: reason}); err != nil {
		l.log.WithError(err).Warn("Send failed")
	}
}

func (l *ServerLobby) OnConnectionRequested(from string, p gamepackets.ConnectionRequestedPacket) {
	rec := l.peers[from]
	if rec.accepted {
		l.log.WithField("peer", from).Warn("Ignoring repeated connection request")
		return
	}
	if len(p.Players) == 0 {
		l.log.WithField("peer", from).Warn("Connection request without players")
		return
	}
	if l.state != AcceptingClients {
		l.refuse(rec, gamepackets.RefusedBusy)
		return
	}
	if l.setup.PlayerCount()+len(p.Players) > l.cfg.MaxPlayers {
		l.refuse(rec, gamepackets.RefusedTooManyPlayers)
		return
	}
	if l.cfg.Password != "" && p.Password != l.cfg.Password {
		l.refuse(rec, gamepackets.RefusedBanned)
		return
	}
	for _, lp := range p.Players {
		if slices.Contains(l.cfg.BannedNames, lp.Name) {
			l.refuse(rec, gamepackets.RefusedBanned)
			return
		}
	}
	karts := intersect(l.karts, p.Karts)
	tracks := intersect(l.tracks, p.Tracks)
	if len(karts) == 0 || len(tracks) == 0 {
		l.refuse(rec, gamepackets.RefusedIncompatibleContent)
		return
	}

	l.karts, l.tracks = karts, tracks
	roster := l.setup.Players()

	rec.accepted = true
	rec.hostID = l.allocateHostID()
	rec.token = newToken()
	rec.authorised = !l.hasAuthorisedPeer()

	var ids []uint8
	var added []setup.PlayerProfile
	for i, lp := range p.Players {
		profile := setup.PlayerProfile{
			GlobalPlayerID: l.allocatePlayerID(),
			HostID:         rec.hostID,
			Name:           lp.Name,
			LocalMaster:    i == 0,
			Difficulty:     lp.Difficulty,
		}
		if err := l.setup.AddPlayer(profile); err != nil {
			continue
		}
		ids = append(ids, profile.GlobalPlayerID)
		added = append(added, profile)
	}
	if rec.authorised && len(ids) > 0 {
		l.setup.SetLocalMaster(ids[0])
	}
	l.latency.Add(from)

	l.log.WithFields(log.Fields{
		"peer":       from,
		"host":       rec.hostID,
		"players":    ids,
		"authorised": rec.authorised,
	}).Info("Connection accepted")

	l.sendTo(rec, gamepackets.ConnectionAcceptedPacket{
		PlayerIDs:  ids,
		HostID:     rec.hostID,
		Token:      rec.token,
		Authorised: rec.authorised,
		Roster:     roster,
		Votes:      gamepackets.VoteHistory(l.setup.Votes()),
	})
	for _, other := range l.accepted() {
		if other == rec {
			continue
		}
		for _, profile := range added {
			l.sendTo(other, gamepackets.NewPlayerConnectedPacket{Player: profile})
		}
	}
}

func intersect(have, offered []string) []string {
	var out []string
	for _, v := range have {
		if slices.Contains(offered, v) {
			out = append(out, v)
		}
	}
	return out
}

func (l *ServerLobby) hasAuthorisedPeer() bool {
	for _, rec := range l.accepted() {
		if rec.authorised {
			return true
		}
	}
	return false
}

// allocatePlayerID hands out ids in increasing order, skipping any still
// seated after a wrap.
func (l *ServerLobby) allocatePlayerID() uint8 {
	for {
		id := l.nextPlayerID
		l.nextPlayerID++
		if _, used := l.setup.Player(id); !used {
			return id
		}
	}
}

func (l *ServerLobby) allocateHostID() uint8 {
	for {
		id := l.nextHostID
		l.nextHostID++
		if id == 0 {
			continue
		}
		inUse := false
		for _, rec := range l.accepted() {
			if rec.hostID == id {
				inUse = true
				break
			}
		}
		if !inUse {
			return id
		}
	}
}

// newToken draws a non-zero connection token. Zero is reserved for the
// initial connection request.
func newToken() uint32 {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(errors.Wrap(err, "crypto/rand unavailable"))
		}
		if token := binary.LittleEndian.Uint32(b[:]); token != 0 {
			return token
		}
	}
}

func (l *ServerLobby) owns(rec *peerRecord, playerID uint8) bool {
	p, ok := l.setup.Player(playerID)
	return ok && p.HostID == rec.hostID
}

func (l *ServerLobby) OnRequestStartSelection(from string, _ gamepackets.RequestStartSelectionPacket) {
	if !l.peers[from].authorised {
		l.log.WithField("peer", from).Warn("Unauthorised peer asked to start selection")
		return
	}
	l.startSelection()
}

func (l *ServerLobby) startSelection() {
	if l.state != AcceptingClients {
		l.log.WithField("state", l.state).Warn("Cannot start selection now")
		return
	}
	if l.setup.PlayerCount() == 0 {
		l.log.Warn("Cannot start selection without players")
		return
	}
	l.setState(Selecting)
	l.setup.Votes().NewRound()
	if l.cfg.WAN {
		l.async(func(ctx context.Context) lobbyMsg {
			if err := l.deps.Directory.Unregister(ctx); err != nil {
				l.log.WithError(err).Warn("Could not unregister from master server")
			}
			return nil
		})
	}
	l.broadcast(gamepackets.StartSelectionPacket{
		Karts:        slices.Clone(l.karts),
		Tracks:       slices.Clone(l.tracks),
		DefaultMode:  l.cfg.DefaultMode,
		DefaultTrack: l.cfg.DefaultTrack,
	})
}

func (l *ServerLobby) OnKartSelectionRequested(from string, p gamepackets.KartSelectionRequestedPacket) {
	rec := l.peers[from]
	refuse := func(reason gamepackets.KartRefusalReason) {
		l.log.WithFields(log.Fields{"peer": from, "player": p.PlayerID, "kart": p.Kart, "reason": reason}).Info("Refusing kart selection")
		l.sendTo(rec, gamepackets.KartSelectionRefusedPacket{PlayerID: p.PlayerID, Reason: reason})
	}
	switch {
	case l.state != Selecting:
		refuse(gamepackets.KartSelectionNotOpen)
	case !l.owns(rec, p.PlayerID), !slices.Contains(l.karts, p.Kart):
		refuse(gamepackets.KartNotAllowed)
	case !l.setup.IsKartAvailable(p.Kart, p.PlayerID):
		refuse(gamepackets.KartTaken)
	default:
		l.setup.SetPlayerKart(p.PlayerID, p.Kart)
		l.broadcast(gamepackets.KartSelectionUpdatePacket{PlayerID: p.PlayerID, Kart: p.Kart})
	}
}

func (l *ServerLobby) OnVote(from string, v gamepackets.VotePacket) {
	fields := log.Fields{"peer": from, "player": v.Voter(), "type": v.Type()}
	if l.state != Selecting {
		l.log.WithFields(fields).WithField("state", l.state).Warn("Dropping vote outside selection")
		return
	}
	if !l.owns(l.peers[from], v.Voter()) {
		l.log.WithFields(fields).Warn("Dropping vote for foreign player")
		return
	}
	if tv, ok := v.(gamepackets.VoteTrackPacket); ok && !slices.Contains(l.tracks, tv.Track) {
		l.log.WithFields(fields).WithField("track", tv.Track).Warn("Dropping vote for unavailable track")
		return
	}

	v.Apply(l.setup.Votes())
	l.broadcast(v)
	l.checkAllVoted()
}

func (l *ServerLobby) checkAllVoted() {
	if l.state == Selecting && l.setup.PlayerCount() > 0 && l.setup.TrackVoters() == l.setup.PlayerCount() {
		l.startLoadWorld()
	}
}

func (l *ServerLobby) startLoadWorld() {
	l.setState(LoadWorld)
	l.broadcast(gamepackets.LoadWorldPacket{})

	mode := l.setup.Votes().ComputeRaceMode(l.cfg.DefaultMode)
	l.matchSetup = world.Setup{
		Mode:    mode,
		Tracks:  l.setup.Votes().ComputeTracks(mode.Slots(), l.cfg.DefaultTrack),
		Players: l.setup.Players(),
	}
	l.match++
	l.serverLoaded = false
	clear(l.readyPlayers)
	l.log.WithFields(log.Fields{
		"major": mode.Major,
		"minor": mode.Minor,
		"track": l.matchSetup.Tracks[0].Name,
		"laps":  l.matchSetup.Tracks[0].Laps,
	}).Info("Loading world")

	l.loadWorld(l.deps.Builder, l.matchSetup, l.match)
	l.setState(WaitForWorldLoaded)
}

func (l *ServerLobby) onWorldLoaded(msg worldLoaded) {
	if msg.match != l.match || l.state != WaitForWorldLoaded {
		if msg.world != nil {
			msg.world.Freeze()
		}
		return
	}
	if msg.err != nil {
		l.errorLeave(errors.WithMessage(ErrWorldLoad, msg.err.Error()))
		return
	}
	l.world = msg.world
	l.serverLoaded = true
	l.checkWorldLoaded()
}

func (l *ServerLobby) OnClientLoadedWorld(from string, p gamepackets.ClientLoadedWorldPacket) {
	if l.state != WaitForWorldLoaded {
		l.log.WithFields(log.Fields{"peer": from, "state": l.state}).Warn("Unexpected world loaded notice")
		return
	}
	rec := l.peers[from]
	for _, id := range p.PlayerIDs {
		if l.owns(rec, id) {
			l.readyPlayers[id] = true
		}
	}
	l.checkWorldLoaded()
}

func (l *ServerLobby) readyCount() int {
	n := 0
	for _, p := range l.setup.Players() {
		if l.readyPlayers[p.GlobalPlayerID] {
			n++
		}
	}
	return n
}

// checkWorldLoaded is the start barrier: the server world and every seated
// player must be ready at the same time.
func (l *ServerLobby) checkWorldLoaded() {
	if l.state != WaitForWorldLoaded || !l.serverLoaded {
		return
	}
	if l.setup.PlayerCount() == 0 || l.readyCount() != l.setup.PlayerCount() {
		return
	}
	for _, rec := range l.accepted() {
		rec.started = false
	}
	l.broadcast(gamepackets.StartRacePacket{})
	l.setState(WaitForRaceStarted)
}

func (l *ServerLobby) OnStartedRace(from string, _ gamepackets.StartedRacePacket) {
	if l.state != WaitForRaceStarted {
		l.log.WithFields(log.Fields{"peer": from, "state": l.state}).Warn("Unexpected race started notice")
		return
	}
	l.peers[from].started = true
	l.checkRaceStarted()
}

func (l *ServerLobby) checkRaceStarted() {
	if l.state != WaitForRaceStarted {
		return
	}
	for _, rec := range l.accepted() {
		if !rec.started {
			return
		}
	}

	l.setState(DelayServer)
	delay := l.latency.ServerDelay(l.cfg.JitterTolerance, l.cfg.MaxPing)
	l.latencyActive = false
	l.delayGen++
	gen := l.delayGen
	l.log.WithField("delay", delay).Info("Delaying server race start")
	l.after(delay, runFunc{f: func() {
		if gen == l.delayGen && l.state == DelayServer {
			l.startRacing()
		}
	}})
}

func (l *ServerLobby) startRacing() {
	l.world.Start()
	l.raceProtocols = l.deps.RaceProtocols()
	l.setState(Racing)
}

func (l *ServerLobby) finishRace() {
	order := l.world.Karts()
	slices.SortStableFunc(order, func(a, b uint8) int {
		ta, tb := l.world.KartRaceTime(a), l.world.KartRaceTime(b)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	})
	l.world.SetKartPositions(order)
	l.lastResult = order

	l.broadcast(gamepackets.RaceFinishedPacket{Order: order})
	l.report(order)

	for _, rec := range l.accepted() {
		rec.acked = false
	}
	l.setState(ResultDisplay)
	l.resultGen++
	gen := l.resultGen
	l.resultTimer = l.after(l.cfg.ResultTimeout, runFunc{f: func() {
		if gen == l.resultGen && l.state == ResultDisplay {
			l.log.Info("Result display timed out")
			l.exitResultScreen()
		}
	}})
	l.checkAcks()
}

func (l *ServerLobby) report(order []uint8) {
	track := l.matchSetup.Tracks[0]
	result := results.MatchResult{
		Server:     l.cfg.Name,
		Major:      l.matchSetup.Mode.Major.String(),
		Minor:      l.matchSetup.Mode.Minor.String(),
		Track:      track.Name,
		Laps:       track.Laps,
		Reversed:   track.Reversed,
		FinishedAt: time.Now(),
	}
	for i, kart := range order {
		entry := results.Entry{Rank: i + 1, PlayerID: kart, RaceTime: l.world.KartRaceTime(kart)}
		if p, ok := l.setup.Player(kart); ok {
			entry.Name, entry.Kart = p.Name, p.Kart
		}
		result.Entries = append(result.Entries, entry)
	}
	l.async(func(ctx context.Context) lobbyMsg {
		if err := l.deps.Reporter.ReportResults(ctx, result); err != nil {
			l.log.WithError(err).Warn("Could not report results")
		}
		return nil
	})
}

func (l *ServerLobby) OnRaceFinishedAck(from string, _ gamepackets.RaceFinishedAckPacket) {
	if l.state != ResultDisplay {
		return
	}
	l.peers[from].acked = true
	l.checkAcks()
}

func (l *ServerLobby) checkAcks() {
	if l.state != ResultDisplay {
		return
	}
	for _, rec := range l.accepted() {
		if !rec.acked {
			return
		}
	}
	l.exitResultScreen()
}

func (l *ServerLobby) exitResultScreen() {
	l.broadcast(gamepackets.ExitResultScreenPacket{})
	l.resetMatch()
}

func (l *ServerLobby) stopRace() {
	stopProtocols(l.raceProtocols)
	l.raceProtocols = nil
	if l.resultTimer != nil {
		l.resultTimer.Stop()
		l.resultTimer = nil
	}
	if l.world != nil {
		l.world.Freeze()
		l.world = nil
	}
}

// resetMatch clears per-match state and reopens the lobby. The roster and
// the vote values carry over; kart choices do not.
func (l *ServerLobby) resetMatch() {
	l.stopRace()
	l.match++
	l.delayGen++
	l.resultGen++
	l.serverLoaded = false
	clear(l.readyPlayers)
	l.setup.ClearKarts()
	for _, rec := range l.accepted() {
		rec.started = false
		rec.acked = false
	}
	l.latency.Reset()
	l.latencyActive = true

	if l.cfg.WAN {
		l.registerSelf()
		return
	}
	l.setState(AcceptingClients)
}

func (l *ServerLobby) onPeerDisconnected(peerID string) {
	rec, ok := l.peers[peerID]
	if !ok {
		return
	}
	delete(l.peers, peerID)
	l.peerOrder = slices.DeleteFunc(l.peerOrder, func(id string) bool { return id == peerID })
	l.latency.Remove(peerID)
	if !rec.accepted {
		return
	}

	removed := l.setup.RemoveHost(rec.hostID)
	for _, p := range removed {
		delete(l.readyPlayers, p.GlobalPlayerID)
		l.broadcast(gamepackets.PlayerDisconnectedPacket{PlayerID: p.GlobalPlayerID})
	}
	l.log.WithFields(log.Fields{"peer": peerID, "host": rec.hostID, "players": len(removed)}).Info("Host disconnected")

	if l.setup.PlayerCount() == 0 && l.state.inMatch() {
		l.log.Info("Everybody left, back to the lobby")
		l.resetMatch()
		return
	}

	switch l.state {
	case Selecting:
		l.checkAllVoted()
	case WaitForWorldLoaded:
		l.checkWorldLoaded()
	case WaitForRaceStarted:
		l.checkRaceStarted()
	case ResultDisplay:
		l.checkAcks()
	}
}

func (l *ServerLobby) sendPings(now time.Time) {
	if !l.latencyActive {
		return
	}
	for _, rec := range l.accepted() {
		ping, ok := l.latency.NextPing(rec.peer.ID(), now)
		if !ok {
			continue
		}
		if err := sendUnreliable(rec.peer, rec.token, ping); err != nil {
			l.log.WithError(err).WithField("peer", rec.peer.ID()).Debug("Ping failed")
		}
	}
}

func (l *ServerLobby) OnPong(from string, p gamepackets.PongPacket) {
	if !l.latencyActive {
		return
	}
	l.latency.OnPong(from, p.Seq, time.Now())
}

func (l *ServerLobby) snapshot() ServerView {
	v := ServerView{
		State:         l.state,
		PublicAddress: l.publicAddress,
		Players:       l.setup.Players(),
		Votes:         make(map[uint8]vote.RaceVote),
		Karts:         slices.Clone(l.karts),
		Tracks:        slices.Clone(l.tracks),
		Mode:          l.setup.Votes().ComputeRaceMode(l.cfg.DefaultMode),
		ServerLoaded:  l.serverLoaded,
		ReadyPlayers:  l.readyCount(),
		Pings:         l.latency.Averages(),
		LastResult:    slices.Clone(l.lastResult),
		RaceProtocols: len(l.raceProtocols),
	}
	v.NextTracks = l.setup.Votes().ComputeTracks(v.Mode.Slots(), l.cfg.DefaultTrack)
	for _, id := range l.setup.Votes().Voters() {
		v.Votes[id], _ = l.setup.Votes().Get(id)
	}
	return v
}
