package directory

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// HTTP talks to a master server that accepts JSON posts on
// <base>/register and <base>/unregister.
type HTTP struct {
	base   string
	client *retryablehttp.Client
	last   Entry
}

func NewHTTP(base string) *HTTP {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	return &HTTP{base: base, client: client}
}

func (h *HTTP) post(ctx context.Context, path string, body any) error {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "could not encode body")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bodyJSON)
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return errors.Errorf("post %s: unexpected status %s", path, resp.Status)
	}
	return nil
}

func (h *HTTP) Register(ctx context.Context, e Entry) error {
	if err := h.post(ctx, "/register", e); err != nil {
		return err
	}
	h.last = e
	log.WithField("address", e.Address).Info("Registered with master server")
	return nil
}

func (h *HTTP) Unregister(ctx context.Context) error {
	return h.post(ctx, "/unregister", map[string]string{"address": h.last.Address})
}
