package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_RegisterAndUnregister(t *testing.T) {
	var paths []string
	var registered Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/register" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL)
	entry := Entry{Name: "tuxland", Address: "1.2.3.4:2759", MaxPlayers: 8}
	require.NoError(t, h.Register(context.Background(), entry))
	require.NoError(t, h.Unregister(context.Background()))

	assert.Equal(t, []string{"/register", "/unregister"}, paths)
	assert.Equal(t, entry, registered)
}

func TestHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL).Register(context.Background(), Entry{Address: "1.2.3.4:1"})
	assert.Error(t, err)
}
