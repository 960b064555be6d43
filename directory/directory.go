package directory

import "context"

// Entry describes this server to a master directory.
type Entry struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	Password   bool   `json:"password"`
}

// Registrar lists and delists the server in a master directory.
type Registrar interface {
	Register(ctx context.Context, e Entry) error
	Unregister(ctx context.Context) error
}

// None is used by LAN servers; it never talks to anything.
type None struct{}

func (None) Register(context.Context, Entry) error { return nil }
func (None) Unregister(context.Context) error { return nil }
