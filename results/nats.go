package results

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NATS publishes every result as JSON on a subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject, name string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("Disconnected from nats")
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to nats at %s", url)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

func (n *NATS) ReportResults(ctx context.Context, r MatchResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "could not encode match result")
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.Wrapf(err, "publish to %s", n.subject)
	}
	return errors.Wrap(n.conn.FlushWithContext(ctx), "flush nats connection")
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}
