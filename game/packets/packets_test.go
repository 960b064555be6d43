package gamepackets

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartlobby/game/setup"
	"kartlobby/game/vote"
)

func TestFromBytes_KeepsTokenAndFields(t *testing.T) {
	f := PacketFactory{}
	accepted := ConnectionAcceptedPacket{
		PlayerIDs:  []uint8{3, 4},
		HostID:     2,
		Token:      0xdeadbeef,
		Authorised: true,
		Roster: []setup.PlayerProfile{
			{GlobalPlayerID: 0, HostID: 1, Name: "tux", Kart: "tux", LocalMaster: true},
		},
		Votes: []VotePacket{
			VoteLapsPacket{PlayerID: 0, Laps: 5},
			VoteTrackPacket{PlayerID: 0, Track: "hacienda", Index: 1},
		},
	}

	data, err := Encode(accepted.Token, accepted)
	require.NoError(t, err)
	assert.Equal(t, byte(ConnectionAccepted), data[0])

	frame, err := f.FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), frame.Token)
	assert.Equal(t, accepted, frame.Packet)
}

func TestFromBytes_VoteEchoKeepsShape(t *testing.T) {
	f := PacketFactory{}
	req := VoteTrackPacket{PlayerID: 1, Track: "zengarden", Index: 2}

	data, err := Encode(7, req)
	require.NoError(t, err)
	frame, err := f.FromBytes(data)
	require.NoError(t, err)

	echo, ok := frame.Packet.(VotePacket)
	require.True(t, ok)
	assert.Equal(t, uint8(1), echo.Voter())

	table := vote.NewTable()
	echo.Apply(table)
	assert.Equal(t, "zengarden", table.ComputeTracks(3, vote.Track{})[2].Name)
}

func TestFromBytes_Errors(t *testing.T) {
	f := PacketFactory{}

	_, err := f.FromBytes(nil)
	assert.True(t, errors.Is(err, ErrShortPacket))

	_, err = f.FromBytes([]byte{0xff, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrUnknownPacket))

	// token cut short
	_, err = f.FromBytes([]byte{byte(StartRace), 1, 2})
	assert.True(t, errors.Is(err, ErrShortPacket))

	// body advertises more strings than it carries
	_, err = f.FromBytes([]byte{byte(StartSelection), 0, 0, 0, 0, 5, 0})
	assert.True(t, errors.Is(err, ErrShortPacket))
}

func TestEncode_RejectsLongStrings(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Encode(0, KartSelectionRequestedPacket{PlayerID: 0, Kart: string(long)})
	assert.True(t, errors.Is(err, ErrStringTooLong))
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	rec := &recordingClient{}
	packets := []ClientPacket{
		StartRacePacket{},
		RaceFinishedPacket{Order: []uint8{2, 0, 1}},
		VoteMinorPacket{PlayerID: 0, Minor: vote.MinorSoccer},
	}
	for _, p := range packets {
		p.DispatchClient(rec)
	}
	assert.Equal(t, []PacketType{StartRace, RaceFinished, VoteMinor}, rec.seen)
}

type recordingClient struct {
	seen []PacketType
}

func (r *recordingClient) OnConnectionAccepted(p ConnectionAcceptedPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnConnectionRefused(p ConnectionRefusedPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnNewPlayerConnected(p NewPlayerConnectedPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnPlayerDisconnected(p PlayerDisconnectedPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnStartSelection(p StartSelectionPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnKartSelectionUpdate(p KartSelectionUpdatePacket) {
	r.seen = append(r.seen, p.Type())
}
func (r *recordingClient) OnKartSelectionRefused(p KartSelectionRefusedPacket) {
	r.seen = append(r.seen, p.Type())
}
func (r *recordingClient) OnVote(v VotePacket) { r.seen = append(r.seen, v.Type()) }
func (r *recordingClient) OnLoadWorld(p LoadWorldPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnStartRace(p StartRacePacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnRaceFinished(p RaceFinishedPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnExitResultScreen(p ExitResultScreenPacket) { r.seen = append(r.seen, p.Type()) }
func (r *recordingClient) OnPing(p PingPacket) { r.seen = append(r.seen, p.Type()) }

func TestFromBytes_StartSelectionCarriesDefaults(t *testing.T) {
	f := PacketFactory{}
	start := StartSelectionPacket{
		Karts:        []string{"tux"},
		Tracks:       []string{"hacienda", "lighthouse"},
		DefaultMode:  vote.Mode{Major: vote.MajorGrandPrix, Minor: vote.MinorTimeTrial, RaceCount: 3},
		DefaultTrack: vote.Track{Name: "lighthouse", Reversed: true, Laps: 4},
	}
	data, err := Encode(9, start)
	require.NoError(t, err)
	frame, err := f.FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, start, frame.Packet)
}

func TestVoteHistory_ReplaysIntoSameResolution(t *testing.T) {
	server := vote.NewTable()
	server.SetTrack(1, "X", 0)
	server.SetTrack(0, "Y", 0)
	server.SetReversed(0, true, 0)
	server.SetRaceCount(1, 2)

	client := vote.NewTable()
	for _, v := range VoteHistory(server) {
		v.Apply(client)
	}
	def := vote.Track{Name: "Z", Laps: 3}
	assert.Equal(t, server.ComputeTracks(2, def), client.ComputeTracks(2, def))
	assert.Equal(t, "X", client.ComputeNextTrack(def).Name)
	assert.Equal(t, server.History(), client.History())
}

func TestFromBytes_RejectsNonVoteInHistory(t *testing.T) {
	w := &Writer{}
	w.U8(uint8(ConnectionAccepted))
	w.U32(1)
	ConnectionAcceptedPacket{HostID: 1}.Marshal(w)
	data := w.Bytes()
	// patch the vote count to one and append a non-vote packet type
	data = append(data[:len(data)-2], 1, 0, byte(LoadWorld))

	_, err := (&PacketFactory{}).FromBytes(data)
	assert.True(t, errors.Is(err, ErrUnknownPacket))
}
