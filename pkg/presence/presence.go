package presence

import (
	"context"
	"encoding/xml"
	"sync"

	"go.uber.org/zap"

	"capcache/pkg/resolver"
)

// Caps is the fingerprint extension attached to presence: the wire-level
// hash label, the base node URI and the fingerprint itself.
type Caps struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/caps c" json:"-"`
	Hash    string   `xml:"hash,attr" json:"hash"`
	Node    string   `xml:"node,attr" json:"node"`
	Ver     string   `xml:"ver,attr" json:"ver"`
}

// Type is a presence stanza type.
type Type string

const (
	Available   Type = "available"
	Unavailable Type = "unavailable"
)

// Presence is the slice of a presence stanza the capability pipeline cares
// about.
type Presence struct {
	From string
	To   string
	Type Type
	Caps *Caps
}

// Annotator stamps outbound available-presence with the local fingerprint.
type Annotator struct {
	tracker *resolver.VersionTracker
	algo    string // wire label, e.g. "sha-1"
}

// NewAnnotator creates an annotator advertising with the given hash label.
func NewAnnotator(tracker *resolver.VersionTracker, algo string) *Annotator {
	return &Annotator{tracker: tracker, algo: algo}
}

// Annotate attaches the capability extension when a local fingerprint is
// set and the presence is available. Returns p for chaining.
func (a *Annotator) Annotate(p *Presence) *Presence {
	ver := a.tracker.Ver()
	if ver == "" || p.Type != Available {
		return p
	}
	p.Caps = &Caps{
		Hash: a.algo,
		Node: a.tracker.Node(),
		Ver:  ver,
	}
	return p
}

// Handler resolves capability advertisements found on inbound presence.
type Handler struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewHandler creates an inbound presence handler.
func NewHandler(r *resolver.Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resolver: r, logger: logger}
}

// HandleInbound inspects inbound presence and, when it carries a capability
// advertisement, resolves it in the background. Resolution errors are
// logged, not returned: a failed resolution only means the peer's
// capabilities stay unknown.
func (h *Handler) HandleInbound(ctx context.Context, p *Presence) {
	if p.Caps == nil || p.Caps.Hash == "" {
		return
	}
	caps := *p.Caps
	from := p.From

	h.logger.Debug("inbound presence with capability advertisement",
		zap.String("from", from),
		zap.String("ver", caps.Ver),
		zap.String("hash", caps.Hash))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.resolver.LookupCapabilities(ctx, from, caps.Node, caps.Ver, caps.Hash); err != nil {
			h.logger.Warn("failed to resolve advertised capabilities",
				zap.String("from", from),
				zap.String("ver", caps.Ver),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight inbound resolutions have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
