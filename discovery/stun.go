package discovery

import (
	"context"
	"net"
	"strconv"

	"github.com/pion/stun/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Prober finds the address other hosts can reach this server on.
type Prober interface {
	PublicAddress(ctx context.Context) (string, error)
}

// STUNProber asks a STUN server for our reflexive address. The probe runs on
// its own socket, so only the mapped IP is kept; Port is the port the server
// really listens on.
type STUNProber struct {
	Server string
	Port   int
}

func (p STUNProber) PublicAddress(ctx context.Context) (string, error) {
	c, err := stun.Dial("udp4", p.Server)
	if err != nil {
		return "", errors.Wrapf(err, "failed to dial stun server %s", p.Server)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	var (
		addr   stun.XORMappedAddress
		reqErr error
	)
	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	err = c.Do(message, func(res stun.Event) {
		if res.Error != nil {
			reqErr = res.Error
			return
		}
		reqErr = addr.GetFrom(res.Message)
	})
	if err == nil {
		err = reqErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "stun probe cancelled")
		}
		return "", errors.Wrap(err, "stun binding request failed")
	}

	public := net.JoinHostPort(addr.IP.String(), strconv.Itoa(p.Port))
	log.WithFields(log.Fields{"address": public, "mapped": addr.String()}).Info("Discovered public address")
	return public, nil
}

// Static reports a fixed address. Used for LAN servers and tests.
type Static string

func (s Static) PublicAddress(context.Context) (string, error) {
	return string(s), nil
}
