package gamepackets

import "fmt"

type PacketType uint8

const (
	ConnectionRequested PacketType = iota
	ConnectionAccepted
	ConnectionRefused
	NewPlayerConnected
	PlayerDisconnected
	RequestStartSelection
	StartSelection
	KartSelectionRequested
	KartSelectionUpdate
	KartSelectionRefused
	VoteMajor
	VoteRaceCount
	VoteMinor
	VoteTrack
	VoteReversed
	VoteLaps
	LoadWorld
	ClientLoadedWorld
	StartRace
	StartedRace
	RaceFinished
	RaceFinishedAck
	ExitResultScreen
	Ping
	Pong
)

func (pt PacketType) String() string {
	switch pt {
	case ConnectionRequested:
		return "ConnectionRequested"
	case ConnectionAccepted:
		return "ConnectionAccepted"
	case ConnectionRefused:
		return "ConnectionRefused"
	case NewPlayerConnected:
		return "NewPlayerConnected"
	case PlayerDisconnected:
		return "PlayerDisconnected"
	case RequestStartSelection:
		return "RequestStartSelection"
	case StartSelection:
		return "StartSelection"
	case KartSelectionRequested:
		return "KartSelectionRequested"
	case KartSelectionUpdate:
		return "KartSelectionUpdate"
	case KartSelectionRefused:
		return "KartSelectionRefused"
	case VoteMajor:
		return "VoteMajor"
	case VoteRaceCount:
		return "VoteRaceCount"
	case VoteMinor:
		return "VoteMinor"
	case VoteTrack:
		return "VoteTrack"
	case VoteReversed:
		return "VoteReversed"
	case VoteLaps:
		return "VoteLaps"
	case LoadWorld:
		return "LoadWorld"
	case ClientLoadedWorld:
		return "ClientLoadedWorld"
	case StartRace:
		return "StartRace"
	case StartedRace:
		return "StartedRace"
	case RaceFinished:
		return "RaceFinished"
	case RaceFinishedAck:
		return "RaceFinishedAck"
	case ExitResultScreen:
		return "ExitResultScreen"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	default:
		return fmt.Sprintf("Unknown(%d)", pt)
	}
}

// Packet is the interface that all packets must implement
type Packet interface {
	Type() PacketType
	Marshal(w *Writer)
}

// ServerPacket is a packet the server accepts from a client.
type ServerPacket interface {
	Packet
	DispatchServer(h ServerHandler, from string)
}

// ClientPacket is a packet the client accepts from the server.
type ClientPacket interface {
	Packet
	DispatchClient(h ClientHandler)
}

// ServerHandler receives decoded client packets. from identifies the
// transport peer that sent the packet.
type ServerHandler interface {
	OnConnectionRequested(from string, p ConnectionRequestedPacket)
	OnRequestStartSelection(from string, p RequestStartSelectionPacket)
	OnKartSelectionRequested(from string, p KartSelectionRequestedPacket)
	OnVote(from string, v VotePacket)
	OnClientLoadedWorld(from string, p ClientLoadedWorldPacket)
	OnStartedRace(from string, p StartedRacePacket)
	OnRaceFinishedAck(from string, p RaceFinishedAckPacket)
	OnPong(from string, p PongPacket)
}

// ClientHandler receives decoded server packets.
type ClientHandler interface {
	OnConnectionAccepted(p ConnectionAcceptedPacket)
	OnConnectionRefused(p ConnectionRefusedPacket)
	OnNewPlayerConnected(p NewPlayerConnectedPacket)
	OnPlayerDisconnected(p PlayerDisconnectedPacket)
	OnStartSelection(p StartSelectionPacket)
	OnKartSelectionUpdate(p KartSelectionUpdatePacket)
	OnKartSelectionRefused(p KartSelectionRefusedPacket)
	OnVote(v VotePacket)
	OnLoadWorld(p LoadWorldPacket)
	OnStartRace(p StartRacePacket)
	OnRaceFinished(p RaceFinishedPacket)
	OnExitResultScreen(p ExitResultScreenPacket)
	OnPing(p PingPacket)
}
