package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves a reference as the name of an environment variable.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates a provider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrSecretNotFound, ref)
	}
	return v, nil
}

func (p *EnvProvider) Close() error { return nil }

// FileProvider resolves a reference as a file path, as used for secrets
// mounted by Docker or Kubernetes. Trailing newlines are trimmed.
//
// Relative references are read from Root. With a non-empty Root, absolute
// references and references escaping Root are rejected.
type FileProvider struct {
	Root string
}

// NewFileProvider creates a provider reading files under root. An empty root
// allows any path.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{Root: root}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path, err := p.path(ref)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: file %s", ErrSecretNotFound, ref)
		}
		return "", fmt.Errorf("secret: read file %s: %w", ref, err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func (p *FileProvider) path(ref string) (string, error) {
	if p.Root == "" {
		return ref, nil
	}
	if filepath.IsAbs(ref) || !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidRef, ref, p.Root)
	}
	return filepath.Join(p.Root, ref), nil
}

func (p *FileProvider) Close() error { return nil }

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
