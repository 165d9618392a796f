package app

import (
	"testing"

	"go.uber.org/fx"

	"github.com/Additional-Code/palate/internal/migration"
	"github.com/Additional-Code/palate/internal/seeder"
)

// The graphs are validated without invoking constructors, so no database,
// broker or cache has to be reachable.
func TestGraphs(t *testing.T) {
	tests := []struct {
		name string
		opts fx.Option
	}{
		{name: "http", opts: HTTP},
		{name: "worker", opts: Worker},
		{name: "migrate", opts: fx.Options(Infra, migration.Module, fx.Invoke(func(*migration.Migrator) {}))},
		{name: "seed", opts: fx.Options(Core, seeder.Module, fx.Invoke(func(*seeder.Seeder) {}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fx.ValidateApp(tt.opts, fx.NopLogger); err != nil {
				t.Fatal(err)
			}
		})
	}
}
