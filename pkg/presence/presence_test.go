package presence

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capcache/pkg/cache"
	"capcache/pkg/caps"
	"capcache/pkg/disco"
	"capcache/pkg/resolver"
	"capcache/pkg/store"
)

func TestAnnotateStampsAvailablePresence(t *testing.T) {
	registry := disco.NewRegistry(nil)
	tracker := resolver.NewVersionTracker(registry, "https://capcache.example/", nil)
	tracker.Update()

	a := NewAnnotator(tracker, "sha-1")
	p := a.Annotate(&Presence{From: "alice", Type: Available})

	require.NotNil(t, p.Caps)
	assert.Equal(t, "sha-1", p.Caps.Hash)
	assert.Equal(t, "https://capcache.example/", p.Caps.Node)
	assert.Equal(t, tracker.Ver(), p.Caps.Ver)
}

func TestAnnotateSkipsUnavailablePresence(t *testing.T) {
	registry := disco.NewRegistry(nil)
	tracker := resolver.NewVersionTracker(registry, "https://capcache.example/", nil)
	tracker.Update()

	a := NewAnnotator(tracker, "sha-1")
	p := a.Annotate(&Presence{From: "alice", Type: Unavailable})
	assert.Nil(t, p.Caps)
}

func TestAnnotateSkipsWithoutFingerprint(t *testing.T) {
	registry := disco.NewRegistry(nil)
	tracker := resolver.NewVersionTracker(registry, "https://capcache.example/", nil)

	a := NewAnnotator(tracker, "sha-1")
	p := a.Annotate(&Presence{From: "alice", Type: Available})
	assert.Nil(t, p.Caps)
}

func TestCapsMarshalsToWireForm(t *testing.T) {
	data, err := xml.Marshal(&Caps{Hash: "sha-1", Node: "https://example.org/", Ver: "QgayPKawpkPSDYmwT/WM94uAlu0="})
	require.NoError(t, err)
	assert.Equal(t,
		`<c xmlns="http://jabber.org/protocol/caps" hash="sha-1" node="https://example.org/" ver="QgayPKawpkPSDYmwT/WM94uAlu0="></c>`,
		string(data))
}

type staticSource struct {
	set *caps.Set
}

func (s staticSource) FetchInfo(context.Context, string, string, bool) (*caps.Set, error) {
	return s.set.Clone(), nil
}

func TestHandleInboundResolvesAdvertisement(t *testing.T) {
	set := &caps.Set{
		Identities: []caps.Identity{{Category: "client", Type: "pc"}},
		Features:   []string{"urn:xmpp:ping"},
	}
	ver, err := caps.HashQuery(set, "sha1")
	require.NoError(t, err)

	tiered := store.New("", "", store.XMLCodec{}, nil, nil)
	r := resolver.New(cache.New(tiered, nil, nil), staticSource{set: set}, nil, nil)
	h := NewHandler(r, nil)

	h.HandleInbound(context.Background(), &Presence{
		From: "peer:1",
		Type: Available,
		Caps: &Caps{Hash: "sha-1", Node: "https://example.org/", Ver: ver},
	})
	h.Wait()

	cached, err := tiered.Lookup("sha-1", "https://example.org/#"+ver)
	require.NoError(t, err)
	assert.Equal(t, set.Features, cached.Features)
}

func TestHandleInboundIgnoresBarePresence(t *testing.T) {
	tiered := store.New("", "", store.XMLCodec{}, nil, nil)
	r := resolver.New(cache.New(tiered, nil, nil), staticSource{set: &caps.Set{}}, nil, nil)
	h := NewHandler(r, nil)

	h.HandleInbound(context.Background(), &Presence{From: "peer:1", Type: Available})
	h.HandleInbound(context.Background(), &Presence{From: "peer:1", Type: Available, Caps: &Caps{}})
	h.Wait()
}
