package signaling

import "github.com/pion/webrtc/v4"

type Envelope struct {
	Type string `json:"type"`
}

// JoinRequest opens a session. The client is always the offerer.
type JoinRequest struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Offer   string `json:"offer"`
}

type AcceptJoinPacket struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Session string `json:"session"`
	Answer  string `json:"answer"`
}

type RejectJoinPacket struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type IceCandidatePacket struct {
	Type      string                  `json:"type"`
	Session   string                  `json:"session"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

const (
	typeJoin      = "joinInvite"
	typeAccept    = "acceptJoin"
	typeReject    = "rejectJoin"
	typeCandidate = "iceCandidate"
)
