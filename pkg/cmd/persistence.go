package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/persistence/file"
	"github.com/veriflow-io/veriflow/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres:// or postgresql:// for PostgreSQL, anything else falls
// back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
