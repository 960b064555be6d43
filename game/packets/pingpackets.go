package gamepackets

// PingPacket is sent over the unreliable channel. SentAt is the server's
// clock in unix milliseconds and is informational only.
type PingPacket struct {
	Seq    uint32
	SentAt uint64
}

func (p PingPacket) Type() PacketType {
	return Ping
}

func (p PingPacket) Marshal(w *Writer) {
	// [seq (4 bytes)][sent at (8 bytes)]
	w.U32(p.Seq)
	w.U64(p.SentAt)
}

func (p PingPacket) DispatchClient(h ClientHandler) {
	h.OnPing(p)
}

func readPing(r *Reader) Packet {
	return PingPacket{Seq: r.U32(), SentAt: r.U64()}
}

type PongPacket struct {
	Seq uint32
}

func (p PongPacket) Type() PacketType {
	return Pong
}

func (p PongPacket) Marshal(w *Writer) {
	w.U32(p.Seq)
}

func (p PongPacket) DispatchServer(h ServerHandler, from string) {
	h.OnPong(from, p)
}

func readPong(r *Reader) Packet {
	return PongPacket{Seq: r.U32()}
}
