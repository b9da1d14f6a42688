// Package blob stores rendered credential images. The blob store is an
// opaque collaborator addressed by key.
package blob

import "context"

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
