package game

import "fmt"

type ServerState uint8

const (
	SetPublicAddress ServerState = iota
	RegisterSelfAddress
	AcceptingClients
	Selecting
	LoadWorld
	WaitForWorldLoaded
	WaitForRaceStarted
	DelayServer
	Racing
	ResultDisplay
	ErrorLeave
	Exiting
)

func (s ServerState) String() string {
	switch s {
	case SetPublicAddress:
		return "SetPublicAddress"
	case RegisterSelfAddress:
		return "RegisterSelfAddress"
	case AcceptingClients:
		return "AcceptingClients"
	case Selecting:
		return "Selecting"
	case LoadWorld:
		return "LoadWorld"
	case WaitForWorldLoaded:
		return "WaitForWorldLoaded"
	case WaitForRaceStarted:
		return "WaitForRaceStarted"
	case DelayServer:
		return "DelayServer"
	case Racing:
		return "Racing"
	case ResultDisplay:
		return "ResultDisplay"
	case ErrorLeave:
		return "ErrorLeave"
	case Exiting:
		return "Exiting"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

func (s ServerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// inMatch reports whether a match is being prepared or played.
func (s ServerState) inMatch() bool {
	return s >= Selecting && s <= ResultDisplay
}

type ClientState uint8

const (
	None ClientState = iota
	Linked
	RequestingConnection
	Connected
	KartSelection
	SelectingKarts
	Playing
	RaceFinished
	Done
	ClientExiting
)

func (s ClientState) String() string {
	switch s {
	case None:
		return "None"
	case Linked:
		return "Linked"
	case RequestingConnection:
		return "RequestingConnection"
	case Connected:
		return "Connected"
	case KartSelection:
		return "KartSelection"
	case SelectingKarts:
		return "SelectingKarts"
	case Playing:
		return "Playing"
	case RaceFinished:
		return "RaceFinished"
	case Done:
		return "Done"
	case ClientExiting:
		return "Exiting"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

func (s ClientState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
