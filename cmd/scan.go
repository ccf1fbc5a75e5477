package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/config"
	"github.com/dautsuro/shelfsieve/internal/fetch"
	"github.com/dautsuro/shelfsieve/internal/render"
	"github.com/dautsuro/shelfsieve/internal/scan"
	"github.com/dautsuro/shelfsieve/internal/tagfilter"
)

// engine bundles the wired-up components shared by scan and watch.
type engine struct {
	cfg   *config.Config
	db    *cache.Cache
	queue *fetch.Queue
	rec   *scan.Reconciler
}

func buildEngine(sink render.Sink, ttl time.Duration) (*engine, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := cache.Open(config.CachePath())
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	if err := seedTagSettings(db, cfg); err != nil {
		db.Close()
		return nil, err
	}

	client := &http.Client{Timeout: cfg.HTTPTimeoutDuration()}
	fetcher := fetch.NewPageFetcher(client, cfg.Selectors)
	queue := fetch.NewQueue(fetcher, cfg.RateLimitDuration())
	lister := scan.NewPageLister(client, cfg.ListingURL, cfg.Selectors)

	if ttl < 0 {
		ttl = cfg.CacheTTLDuration()
	}
	rec, err := scan.NewReconciler(db, queue, lister, sink, scan.Options{
		TTL:      ttl,
		Debounce: cfg.ScanDebounceDuration(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &engine{cfg: cfg, db: db, queue: queue, rec: rec}, nil
}

// seedTagSettings copies the config's tag lists into the settings
// store on first run only; afterwards `tags set` owns them.
func seedTagSettings(db *cache.Cache, cfg *config.Config) error {
	has, err := db.HasTagSettings()
	if err != nil {
		return fmt.Errorf("reading tag settings: %w", err)
	}
	if has {
		return nil
	}
	seed := tagfilter.Settings{Include: cfg.Tags.Include, Exclude: cfg.Tags.Exclude}
	if !seed.Active() {
		return nil
	}
	return db.SaveTagSettings(seed)
}

func runScan(cmd *cobra.Command, args []string) error {
	sink := &render.TableSink{}

	ttl := time.Duration(-1)
	if flagRefresh {
		ttl = 0 // every record counts as stale
	}

	eng, err := buildEngine(sink, ttl)
	if err != nil {
		return err
	}
	defer eng.db.Close()

	hide, err := eng.db.HideRejected()
	if err != nil {
		return fmt.Errorf("reading display preference: %w", err)
	}
	if flagHideRejected {
		hide = true
	}

	if err := eng.rec.RunOnce(cmd.Context()); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	sink.Print(os.Stdout, hide)
	return nil
}
