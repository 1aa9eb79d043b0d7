package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubProvider struct {
	name    string
	values  map[string]string
	resolve func(ref string) (string, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, ref string) (string, error) {
	if s.resolve != nil {
		return s.resolve(ref)
	}
	if s.values == nil {
		return "", nil
	}
	return s.values[ref], nil
}

func (s *stubProvider) Close() error { return nil }

func TestParseSecretRef(t *testing.T) {
	provider, ref, ok := ParseSecretRef("secretref:stub:alpha")
	if !ok {
		t.Fatalf("expected secretref to parse")
	}
	if provider != "stub" || ref != "alpha" {
		t.Fatalf("unexpected values: %q %q", provider, ref)
	}

	_, _, ok = ParseSecretRef("not-a-secretref")
	if ok {
		t.Fatalf("expected non-secretref to fail")
	}
}

func TestResolver_ResolvesFullSecretRef(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"alpha": "one"}})

	got, err := r.ResolveValue(context.Background(), "secretref:stub:alpha")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "one" {
		t.Fatalf("ResolveValue() = %q, want %q", got, "one")
	}
}

func TestResolver_ResolvesInlineSecretRef(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"beta": "two"}})

	got, err := r.ResolveValue(context.Background(), "Bearer secretref:stub:beta")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "Bearer two" {
		t.Fatalf("ResolveValue() = %q, want %q", got, "Bearer two")
	}
}

func TestResolver_StrictEmptyProviderValueErrors(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"empty": ""}})

	_, err := r.ResolveValue(context.Background(), "secretref:stub:empty")
	if !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestResolver_UnregisteredProvider(t *testing.T) {
	r := NewResolver(true)

	_, err := r.ResolveValue(context.Background(), "secretref:vault:openai")
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestResolver_NilExpandsEnvOnly(t *testing.T) {
	t.Setenv("FEEDBACK_TEST_TOKEN", "abc")

	var r *Resolver
	got, err := r.ResolveValue(context.Background(), "${FEEDBACK_TEST_TOKEN}")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "abc" {
		t.Fatalf("ResolveValue() = %q, want %q", got, "abc")
	}
}

func TestResolver_ProviderResolveErrorPropagates(t *testing.T) {
	explode := errors.New("explode")
	r := NewResolver(true, &stubProvider{name: "stub", resolve: func(ref string) (string, error) {
		if ref == "boom" {
			return "", explode
		}
		return "ok", nil
	}})

	_, err := r.ResolveValue(context.Background(), "secretref:stub:boom")
	if !errors.Is(err, explode) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestDefaultResolver_EnvAndFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "openai"), []byte("sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FEEDBACK_TEST_KEY", "sk-env")

	r := NewDefaultResolver(dir)
	defer r.Close()

	tests := map[string]string{
		"secretref:env:FEEDBACK_TEST_KEY": "sk-env",
		"secretref:file:openai":           "sk-file",
		"Bearer secretref:file:openai":    "Bearer sk-file",
	}
	for in, want := range tests {
		got, err := r.ResolveValue(context.Background(), in)
		if err != nil {
			t.Fatalf("ResolveValue(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ResolveValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnvProvider_Missing(t *testing.T) {
	_, err := NewEnvProvider().Resolve(context.Background(), "FEEDBACK_TEST_SURELY_UNSET")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestFileProvider_RejectsEscapes(t *testing.T) {
	p := NewFileProvider(t.TempDir())

	for _, ref := range []string{"../etc/passwd", "/etc/passwd"} {
		if _, err := p.Resolve(context.Background(), ref); !errors.Is(err, ErrInvalidRef) {
			t.Fatalf("Resolve(%q): expected ErrInvalidRef, got %v", ref, err)
		}
	}
	if _, err := p.Resolve(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestParseSecretRef_RejectsTrailingText(t *testing.T) {
	for _, in := range []string{"secretref:stub:a tail", "secretref:stub", "secretref::a", "secretref:stub:"} {
		if _, _, ok := ParseSecretRef(in); ok {
			t.Errorf("ParseSecretRef(%q) parsed, want rejection", in)
		}
	}
}

func TestResolver_MultipleInlineRefs(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"user": "ann", "pass": "pw"}})

	got, err := r.ResolveValue(context.Background(), "secretref:stub:user secretref:stub:pass secretref:dangling")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if want := "ann pw secretref:dangling"; got != want {
		t.Fatalf("ResolveValue() = %q, want %q", got, want)
	}
}

func TestResolver_InjectedLookupEnv(t *testing.T) {
	r := NewResolver(true, NewEnvProvider())
	r.LookupEnv = func(name string) (string, bool) {
		if name == "REDIS_HOST" {
			return "cache.internal", true
		}
		return "", false
	}

	got, err := r.ResolveValue(context.Background(), "${REDIS_HOST}:6379")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "cache.internal:6379" {
		t.Fatalf("ResolveValue() = %q", got)
	}
	if _, err := r.ResolveValue(context.Background(), "${UNSET_HOST}"); !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("expected ErrMissingEnv, got %v", err)
	}
}

func TestResolver_ResolveFields(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"key": "sk-1"}})

	apiKey, password, empty := "secretref:stub:key", "secretref:vault:redis", ""
	err := r.ResolveFields(context.Background(), map[string]*string{
		"api key":  &apiKey,
		"password": &password,
		"unset":    &empty,
	})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
	if apiKey != "sk-1" {
		t.Errorf("api key = %q, want resolved", apiKey)
	}
	if password != "secretref:vault:redis" {
		t.Errorf("failed field was modified: %q", password)
	}
}
