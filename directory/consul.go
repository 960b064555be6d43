package directory

import (
	"context"
	"fmt"
	"net"
	"strconv"

	consul "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Consul registers the server as a service in the local consul agent.
type Consul struct {
	client  *consul.Client
	service string
	id      string
}

func NewConsul(address, service, instance string) (*Consul, error) {
	config := consul.DefaultConfig()
	if address != "" {
		config.Address = address
	}
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create consul client")
	}
	return &Consul{
		client:  client,
		service: service,
		id:      fmt.Sprintf("%s-%s", service, instance),
	}, nil
}

func (c *Consul) Register(ctx context.Context, e Entry) error {
	host, portStr, err := net.SplitHostPort(e.Address)
	if err != nil {
		return errors.Wrapf(err, "bad public address %q", e.Address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Wrapf(err, "bad public port %q", portStr)
	}

	registration := &consul.AgentServiceRegistration{
		ID:      c.id,
		Name:    c.service,
		Address: host,
		Port:    port,
		Meta: map[string]string{
			"name":        e.Name,
			"players":     strconv.Itoa(e.Players),
			"max_players": strconv.Itoa(e.MaxPlayers),
			"password":    strconv.FormatBool(e.Password),
		},
	}
	opts := consul.ServiceRegisterOpts{}.WithContext(ctx)
	if err := c.client.Agent().ServiceRegisterOpts(registration, opts); err != nil {
		return errors.Wrap(err, "consul service registration failed")
	}
	log.WithFields(log.Fields{"service": c.service, "id": c.id}).Info("Registered in consul")
	return nil
}

func (c *Consul) Unregister(ctx context.Context) error {
	q := (&consul.QueryOptions{}).WithContext(ctx)
	if err := c.client.Agent().ServiceDeregisterOpts(c.id, q); err != nil {
		return errors.Wrap(err, "consul service deregistration failed")
	}
	log.WithField("id", c.id).Info("Deregistered from consul")
	return nil
}
