// Package storage defines the remote mirror contract. Mirroring is a
// best-effort side channel: the bot keeps working when no backend is
// configured or an upload fails.
package storage

import "context"

type Uploader interface {
	// Upload writes data under remoteName inside the configured folder,
	// overwriting any previous object of the same name.
	Upload(ctx context.Context, remoteName string, data []byte) error
	// EnsureFolder creates a folder marker so the remote path exists even
	// before the first file lands in it.
	EnsureFolder(ctx context.Context, name string) error
}
