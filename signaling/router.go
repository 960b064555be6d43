package signaling

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// route decodes one websocket message and hands it to the matching handler.
func route(message []byte, h handlers) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.WithError(err).Warn("Invalid signaling packet")
		return
	}

	var err error
	switch env.Type {
	case typeJoin:
		var packet JoinRequest
		if err = json.Unmarshal(message, &packet); err == nil && h.join != nil {
			h.join(packet)
		}
	case typeAccept:
		var packet AcceptJoinPacket
		if err = json.Unmarshal(message, &packet); err == nil && h.accept != nil {
			h.accept(packet)
		}
	case typeReject:
		var packet RejectJoinPacket
		if err = json.Unmarshal(message, &packet); err == nil && h.reject != nil {
			h.reject(packet)
		}
	case typeCandidate:
		var packet IceCandidatePacket
		if err = json.Unmarshal(message, &packet); err == nil && h.candidate != nil {
			h.candidate(packet)
		}
	default:
		log.WithField("type", env.Type).Warn("Unknown signaling packet")
	}
	if err != nil {
		log.WithError(err).WithField("type", env.Type).Warn("Malformed signaling packet")
	}
}

type handlers struct {
	join      func(JoinRequest)
	accept    func(AcceptJoinPacket)
	reject    func(RejectJoinPacket)
	candidate func(IceCandidatePacket)
}
