package disco

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"capcache/pkg/caps"
)

func startDiscoServer(t *testing.T, registry *Registry) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterDiscoServer(srv, NewServer(registry, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client := NewClient(nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	t.Cleanup(client.Close)
	return client
}

func TestFetchInfo(t *testing.T) {
	registry := NewRegistry(nil)
	registry.SetIdentities([]caps.Identity{{Category: "client", Type: "bot", Name: "capcache"}})
	registry.RegisterFeature("urn:xmpp:ping")
	client := startDiscoServer(t, registry)

	set, err := client.FetchInfo(context.Background(), "passthrough:///bufnet", "", true)
	require.NoError(t, err)
	assert.Equal(t, "capcache", set.Identities[0].Name)
	assert.True(t, set.HasFeature(CapsFeature))
	assert.True(t, set.HasFeature("urn:xmpp:ping"))
}

func TestFetchInfoMountedNode(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Mount("https://example.org/#v1")
	client := startDiscoServer(t, registry)

	set, err := client.FetchInfo(context.Background(), "passthrough:///bufnet", "https://example.org/#v1", true)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/#v1", set.Node)
}

func TestFetchInfoUnknownNode(t *testing.T) {
	client := startDiscoServer(t, NewRegistry(nil))

	_, err := client.FetchInfo(context.Background(), "passthrough:///bufnet", "https://example.org/#nope", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mounted")
}

func TestClientReusesConnections(t *testing.T) {
	client := startDiscoServer(t, NewRegistry(nil))

	_, err := client.FetchInfo(context.Background(), "passthrough:///bufnet", "", true)
	require.NoError(t, err)
	_, err = client.FetchInfo(context.Background(), "passthrough:///bufnet", "", false)
	require.NoError(t, err)

	client.mu.Lock()
	assert.Len(t, client.conns, 1)
	client.mu.Unlock()
}
