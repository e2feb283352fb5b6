package factory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

func TestNewSQLite(t *testing.T) {
	ctx := context.Background()
	be, err := New(ctx, config.Storage{
		Backend: config.BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("New(sqlite) error: %v", err)
	}
	defer be.Close()

	if err := be.Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestNewEmptyBackendDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	be, err := New(ctx, config.Storage{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("New('') error: %v", err)
	}
	defer be.Close()
}

func TestNewSharded(t *testing.T) {
	ctx := context.Background()
	be, err := New(ctx, config.Storage{
		Backend: config.BackendSharded,
		Path:    t.TempDir(),
		Shards:  3,
	})
	if err != nil {
		t.Fatalf("New(sharded) error: %v", err)
	}
	defer be.Close()

	if _, err := be.Participants().Create(ctx, &types.Participant{ID: "agent-1"}); err != nil {
		t.Errorf("Create() through sharded backend: %v", err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.Storage{Backend: "postgres"})
	if err == nil {
		t.Fatal("New(postgres) should error")
	}
	if !strings.Contains(err.Error(), "unknown storage backend") {
		t.Errorf("error should name the unknown backend, got: %v", err)
	}
}

func TestRegisteredNames(t *testing.T) {
	names := Registered()
	want := map[string]bool{
		config.BackendSQLite:  false,
		config.BackendDolt:    false,
		config.BackendSharded: false,
	}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("backend %q not registered", n)
		}
	}
}

func TestRegisterBackend(t *testing.T) {
	called := false
	RegisterBackend("test-backend", func(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
		called = true
		return nil, nil
	})
	t.Cleanup(func() { delete(backendRegistry, "test-backend") })

	if _, err := New(context.Background(), config.Storage{Backend: "test-backend"}); err != nil {
		t.Fatalf("New(test-backend) error: %v", err)
	}
	if !called {
		t.Error("registered factory was not called")
	}
}
