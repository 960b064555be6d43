package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveSTUN answers every binding request with a fixed mapped address.
func serveSTUN(t *testing.T, mapped *net.UDPAddr) string {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}
			res, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: mapped.IP, Port: mapped.Port},
				stun.Fingerprint,
			)
			if err != nil {
				continue
			}
			conn.WriteTo(res.Raw, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestSTUNProber_PublicAddress(t *testing.T) {
	server := serveSTUN(t, &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 4242})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// the mapped port belongs to the probe socket, not to the server
	addr, err := STUNProber{Server: server, Port: 2759}.PublicAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9:2759", addr)
}

func TestSTUNProber_GivesUpWithContext(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = STUNProber{Server: silent.LocalAddr().String()}.PublicAddress(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStatic(t *testing.T) {
	addr, err := Static("192.0.2.1:2759").PublicAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:2759", addr)
}
