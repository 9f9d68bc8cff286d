package transport

import (
	"context"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"

	"github.com/nao1215/stealthfetch/internal/identity"
)

// helloIDFor maps a profile fingerprint to a concrete uTLS preset.
// Pinned versions keep the extension list stable across library upgrades.
func helloIDFor(fp identity.TLSFingerprint) utls.ClientHelloID {
	switch fp {
	case identity.TLSFirefox:
		return utls.HelloFirefox_120
	case identity.TLSSafari:
		return utls.HelloIOS_14
	default:
		return utls.HelloChrome_120
	}
}

// helloSpecFor builds the ClientHello spec with ALPN restricted to
// http/1.1. The connection is handed to net/http as a plain net.Conn, which
// only speaks HTTP/1.1, so advertising h2 would let the server pick a
// protocol the client cannot talk. ALPS only makes sense alongside h2 and is
// dropped.
func helloSpecFor(fp identity.TLSFingerprint) (*utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(helloIDFor(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to build ClientHello for %s: %w", fp, err)
	}

	exts := spec.Extensions[:0]
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension:
			continue
		}
		exts = append(exts, ext)
	}
	spec.Extensions = exts
	return &spec, nil
}

// dialUTLS returns a DialTLSContext that performs the handshake with a
// browser-shaped ClientHello over connections from dial.
func dialUTLS(dial dialFunc, fp identity.TLSFingerprint, insecure bool) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid TLS address %q: %w", addr, err)
		}

		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		spec, err := helloSpecFor(fp)
		if err != nil {
			raw.Close()
			return nil, err
		}

		conn := utls.UClient(raw, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: insecure, //nolint:gosec // user toggle
		}, utls.HelloCustom)
		if err := conn.ApplyPreset(spec); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to apply ClientHello preset: %w", err)
		}
		if err := conn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("TLS handshake with %s failed: %w", addr, err)
		}
		return conn, nil
	}
}
