package incconfig

import "github.com/marmos91/incd/pkg/incproto"

// HandshakePolicy adapts c's VersionPolicy into an incproto.HandshakePolicy,
// so a host wires `incproto.WithHandshakePolicy(cfg.HandshakePolicy())` into
// a server-role Connection without incproto itself depending on incconfig.
func (c *ServerConfig) HandshakePolicy() incproto.HandshakePolicy {
	return c.Negotiate
}
