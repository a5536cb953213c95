package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adquisiciones/internal/config"
	"adquisiciones/internal/memory"
	"adquisiciones/internal/restclient"
	"adquisiciones/internal/storage"
)

func TestTypes(t *testing.T) {
	for _, bt := range Types() {
		if !bt.Valid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if Type("sheets").Valid() {
		t.Error("sheets is not a record backend")
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := config.Defaults()
	app.DataBackend = config.BackendMemory
	app.DefaultUser = "auditor"
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != Memory || cfg.DefaultActor != "auditor" {
		t.Errorf("unexpected config %+v", cfg)
	}

	app.DataBackend = "nope"
	if _, err := FromAppConfig(app); err == nil {
		t.Fatal("expected error for invalid backend")
	}
}

func TestFactory_CreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	seed := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(seed, []byte(`[{"id":4,"proveedor":"ACME","activo":true}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		cfg   Config
		check func(t *testing.T, res *Result)
	}{
		{
			name: "rest",
			cfg:  Config{Type: REST, APIBaseURL: "http://localhost:1/api", APITimeout: time.Second},
			check: func(t *testing.T, res *Result) {
				if _, ok := res.Backend.(*restclient.Client); !ok {
					t.Errorf("expected *restclient.Client, got %T", res.Backend)
				}
			},
		},
		{
			name: "sqlite",
			cfg:  Config{Type: SQLite, SQLiteDBPath: filepath.Join(t.TempDir(), "adq.db")},
			check: func(t *testing.T, res *Result) {
				if _, ok := res.Backend.(*storage.SQLiteRepository); !ok {
					t.Errorf("expected *storage.SQLiteRepository, got %T", res.Backend)
				}
				if res.cleanup == nil {
					t.Error("sqlite backend must close its database")
				}
			},
		},
		{
			name: "memory with seed",
			cfg:  Config{Type: Memory, SeedFile: seed, DefaultActor: "ana"},
			check: func(t *testing.T, res *Result) {
				s, ok := res.Backend.(*memory.Store)
				if !ok {
					t.Fatalf("expected *memory.Store, got %T", res.Backend)
				}
				if s.Actor != "ana" {
					t.Errorf("Actor = %q, want ana", s.Actor)
				}
				if r, err := s.Get(ctx, 4); err != nil || r.Supplier != "ACME" {
					t.Errorf("seed not loaded: %+v, %v", r, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer res.Close()
			tt.check(t, res)
		})
	}
}

func TestFactory_RejectsIncompleteConfig(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	for _, cfg := range []Config{
		{Type: SQLite},
		{Type: REST},
		{Type: "bogus"},
	} {
		if _, err := f.CreateBackend(ctx, cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}

	var nilResult *Result
	if err := nilResult.Close(); err != nil {
		t.Errorf("Close on nil result: %v", err)
	}
}
