package tlsconfig

import "crypto/tls"

// Identity is the already-loaded server identity the core expects to
// receive (spec §1 non-goals: "TLS certificate loading assumed to yield a
// ready-to-use server identity" — loading certs/keys from disk or a
// secrets manager happens above the core).
type Identity struct {
	Certificates []tls.Certificate
	ALPNProtocols []string // e.g. []string{"h2", "http/1.1"}
}

// BuildServerConfig turns an Identity into a *tls.Config ready to hand to
// tls.Server/tls.NewListener, applying the given version profile and its
// matching cipher-suite recommendation.
func BuildServerConfig(identity Identity, profile VersionProfile) *tls.Config {
	cfg := &tls.Config{
		Certificates: identity.Certificates,
		NextProtos:   identity.ALPNProtocols,
	}
	ApplyVersionProfile(cfg, profile)
	ApplyCipherSuites(cfg, profile.Min)
	return cfg
}
