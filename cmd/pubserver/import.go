package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/aozorahack/pubserver2/pkg/catalog/sqlite"
	"github.com/aozorahack/pubserver2/pkg/config"
)

type importCmd struct {
	config.Import
}

func (c *importCmd) Run(g *config.Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := sqlite.New(g.DB)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	return importFiles(ctx, store, c.Import)
}

// importFiles loads persons before books and books before rankings, so
// that author lookups and ranking titles resolve.
func importFiles(ctx context.Context, store *sqlite.Store, files config.Import) error {
	steps := []struct {
		kind sqlite.ImportKind
		path string
	}{
		{sqlite.ImportPersons, files.Persons},
		{sqlite.ImportWorkers, files.Workers},
		{sqlite.ImportBooks, files.Books},
		{sqlite.ImportRankings, files.Rankings},
	}

	imported := 0
	for _, step := range steps {
		if step.path == "" {
			continue
		}
		n, err := importFile(ctx, store, step.kind, step.path)
		if err != nil {
			return err
		}
		log.Info().Str("kind", string(step.kind)).Str("file", step.path).Int("records", n).Msg("Imported")
		imported++
	}
	if imported == 0 {
		return fmt.Errorf("nothing to import: pass at least one of --books, --persons, --workers, --rankings")
	}
	return nil
}

func importFile(ctx context.Context, store *sqlite.Store, kind sqlite.ImportKind, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return store.Import(ctx, kind, f)
}
