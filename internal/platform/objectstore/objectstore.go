// Package objectstore abstracts the external file store that uploaded
// avatars, event images, and certificate files are relayed to. Only the
// returned URL is persisted by domain services.
package objectstore

import (
	"context"
	"io"
)

// Store persists an upload and returns a retrievable URL. Delete takes
// the URL Put returned.
type Store interface {
	Put(ctx context.Context, u Upload) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// Upload is an inbound file as received by a multipart handler.
type Upload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}
