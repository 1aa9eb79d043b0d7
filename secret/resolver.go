package secret

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"unicode"
)

const refPrefix = "secretref:"

// Resolver turns configuration values into secrets.
//
// A value is first expanded strictly against the environment. Every
// "secretref:<provider>:<ref>" in the result, whole or inline, is then
// replaced by what the named provider returns. Values without references
// pass through unchanged.
type Resolver struct {
	providers map[string]Provider
	strict    bool

	// LookupEnv reads the environment for expansion. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewResolver creates a resolver over providers. With strict set, a provider
// returning an empty value is an error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewDefaultResolver creates a strict resolver with the env provider and a
// file provider rooted at fileRoot.
func NewDefaultResolver(fileRoot string) *Resolver {
	return NewResolver(true, NewEnvProvider(), NewFileProvider(fileRoot))
}

// Register adds provider, replacing any with the same name.
func (r *Resolver) Register(provider Provider) {
	if r == nil || provider == nil {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[provider.Name()] = provider
}

// ResolveValue expands and resolves value. A nil Resolver only expands the
// environment.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	lookup := os.LookupEnv
	if r != nil && r.LookupEnv != nil {
		lookup = r.LookupEnv
	}
	expanded, err := expandStrict(value, lookup)
	if err != nil || r == nil {
		return expanded, err
	}

	var b strings.Builder
	rest := expanded
	for {
		i := strings.Index(rest, refPrefix)
		if i < 0 {
			break
		}
		provider, ref, n := scanRef(rest[i+len(refPrefix):])
		if provider == "" || ref == "" {
			b.WriteString(rest[:i+len(refPrefix)])
			rest = rest[i+len(refPrefix):]
			continue
		}
		resolved, err := r.resolve(ctx, provider, ref)
		if err != nil {
			return "", err
		}
		b.WriteString(rest[:i])
		b.WriteString(resolved)
		rest = rest[i+len(refPrefix)+n:]
	}
	b.WriteString(rest)
	return b.String(), nil
}

// ResolveFields resolves each named value in place. Every failure is
// reported, keyed by its name.
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]*string) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		v := fields[name]
		if v == nil || *v == "" {
			continue
		}
		resolved, err := r.ResolveValue(ctx, *v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*v = resolved
	}
	return errors.Join(errs...)
}

// Close closes every registered provider.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// ParseSecretRef parses a value that is exactly one reference:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, n := scanRef(rest)
	if provider == "" || ref == "" || n != len(rest) {
		return "", "", false
	}
	return provider, ref, true
}

// scanRef reads "<provider>:<ref>" from the start of s. The provider ends at
// the first colon and the ref at the first space. n is the bytes consumed.
func scanRef(s string) (provider, ref string, n int) {
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		end = len(s)
	}
	provider, ref, found := strings.Cut(s[:end], ":")
	if !found {
		return "", "", 0
	}
	return provider, ref, end
}

func (r *Resolver) resolve(ctx context.Context, name, ref string) (string, error) {
	provider, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	resolved, err := provider.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && resolved == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySecret, name)
	}
	return resolved, nil
}
