package ports

import "github.com/layer-3/portero/core"

// Tokenizer converts between session claims and signed bearer tokens
type Tokenizer interface {
	// Issue stamps issued-at and expiry on the claims and signs them
	Issue(claims core.Claims) (string, *core.Claims, error)

	// Verify checks signature and expiry and returns the embedded claims
	Verify(token string) (*core.Claims, error)
}
