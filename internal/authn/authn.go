// Package authn resolves spec §9's open question on AuthRequest: the field
// is carried on the wire but the spec never defines how it is validated.
// This package makes that validation an injectable seam instead of dead
// data, so CodeUnauthorized is a reachable, testable outcome rather than an
// error code with no code path.
package authn

import "github.com/liamsto/alaric/internal/protocol"

// Authenticator decides whether a handshake request's credentials are
// acceptable. It receives the full request so implementations can key off
// role, agent/client id, or metadata as well as the auth payload itself.
type Authenticator interface {
	Authenticate(req protocol.HandshakeRequest) error
}

// AuthenticatorFunc adapts a plain function to the Authenticator interface.
type AuthenticatorFunc func(req protocol.HandshakeRequest) error

func (f AuthenticatorFunc) Authenticate(req protocol.HandshakeRequest) error {
	return f(req)
}

// Permissive accepts every handshake request regardless of its AuthRequest.
// It is the default: the spec describes no credential format or authority
// to validate against, so out of the box the broker behaves exactly as if
// authentication were absent, while still leaving CodeUnauthorized wired to
// a real decision point for deployments that supply their own Authenticator.
var Permissive Authenticator = AuthenticatorFunc(func(protocol.HandshakeRequest) error {
	return nil
})

// RequireToken returns an Authenticator that accepts only requests whose
// AuthRequest carries the given bearer token. A request with no AuthRequest
// at all is rejected, since the deployment opted into requiring one.
func RequireToken(token string) Authenticator {
	return AuthenticatorFunc(func(req protocol.HandshakeRequest) error {
		if req.Auth == nil || req.Auth.Token != token {
			return ErrUnauthorized
		}
		return nil
	})
}

// ErrUnauthorized is returned by an Authenticator that rejects a request.
// The server translates it to a HandshakeResponse with CodeUnauthorized.
var ErrUnauthorized = authError{}

type authError struct{}

func (authError) Error() string { return "authn: unauthorized" }
