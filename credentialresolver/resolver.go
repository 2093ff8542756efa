// Package credentialresolver resolves a source's configured credential
// name into the decrypted token an adapter needs, tolerating a source
// that names no credential (public upstream) or names one that has since
// been deleted (treated the same as no credential, with a warning logged
// on every lookup).
package credentialresolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/brightgate/relwatch/store"
)

// Resolver looks up credential tokens by name.
type Resolver struct {
	store store.CredentialStore
	log   *zap.Logger
}

// New builds a Resolver over the given credential store.
func New(cs store.CredentialStore, log *zap.Logger) *Resolver {
	return &Resolver{store: cs, log: log}
}

// Resolve returns the decrypted token for name, or "" if name is empty or
// no longer exists.
func (r *Resolver) Resolve(ctx context.Context, name string) string {
	if name == "" {
		return ""
	}
	cred, err := r.store.GetCredential(ctx, name)
	if err != nil {
		if r.log != nil {
			r.log.Warn("credential referenced by source not found", zap.String("credential", name), zap.Error(err))
		}
		return ""
	}
	return cred.Token
}
