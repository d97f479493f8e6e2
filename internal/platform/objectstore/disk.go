package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore writes uploads to a local directory and serves them under a base
// URL. It stands in for a hosted object store in single-node deployments.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *DiskStore) Put(_ context.Context, u Upload) (string, error) {
	// Prefix with a UUID so caller-supplied names can never collide or
	// escape the upload directory.
	safe := uuid.NewString() + "-" + filepath.Base(u.Name)
	path := filepath.Join(s.dir, safe)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, u.Reader); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return s.baseURL + "/" + safe, nil
}

func (s *DiskStore) Delete(_ context.Context, url string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(url)))
}
