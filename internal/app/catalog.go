package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/proimagery/ferdi-app-sub000/internal/catalog"
	"github.com/proimagery/ferdi-app-sub000/internal/config"
	"github.com/proimagery/ferdi-app-sub000/internal/storage"
)

// runCatalog handles `catalog load [--refresh]`, `catalog reset` and
// `catalog export`.
func runCatalog(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("expected catalog command: load, reset, or export")
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	remote, err := newRemoteStores(ctx, pool, logger)
	if err != nil {
		return err
	}
	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	loader := newCatalogLoader(cfg, remote, store, logger)
	return catalogCommand(ctx, loader, args, out, func(ctx context.Context) (catalog.Publisher, error) {
		return storage.NewS3Storage(ctx, cfg.ObjectStore)
	})
}

func catalogCommand(ctx context.Context, loader *catalog.Loader, args []string, out io.Writer, publisher func(context.Context) (catalog.Publisher, error)) error {
	switch args[0] {
	case "load":
		refresh := len(args) > 1 && args[1] == "--refresh"
		countries, source, err := loader.Load(ctx, refresh)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "loaded %d countries from %s", len(countries), source)
		if source.Outdated() {
			fmt.Fprint(out, " (may be out of date)")
		}
		fmt.Fprintln(out)
		return nil
	case "reset":
		if err := loader.ResetCache(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "country cache cleared")
		return nil
	case "export":
		pub, err := publisher(ctx)
		if err != nil {
			return err
		}
		location, err := loader.Export(ctx, pub)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exported country catalog to %s\n", location)
		return nil
	default:
		return fmt.Errorf("unknown catalog command %q", args[0])
	}
}
