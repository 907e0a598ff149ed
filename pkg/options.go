package pkg

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/config"
	"github.com/vulnkit/vulnkit/pkg/download"
	"github.com/vulnkit/vulnkit/pkg/metadata"
	"github.com/vulnkit/vulnkit/pkg/normindex"
	"github.com/vulnkit/vulnkit/pkg/source/redhat"
	"github.com/vulnkit/vulnkit/pkg/store"
	"github.com/vulnkit/vulnkit/pkg/store/boltdb"
	"github.com/vulnkit/vulnkit/pkg/store/jsonfile"
)

const normDir = "norm"

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(v string, _ int) string { return strings.TrimSpace(v) }))
}

// loadConfig reads the config file, if any, then applies the flags explicitly set.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if c.GlobalIsSet("data-dir") {
		cfg.DataDir = c.GlobalString("data-dir")
	}
	if c.IsSet("platforms") {
		cfg.Platforms = splitList(c.String("platforms"))
	}
	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("checkpoint-interval") {
		cfg.CheckpointInterval = c.Int("checkpoint-interval")
	}
	if c.IsSet("priority") {
		cfg.Priority = splitList(c.String("priority"))
	}
	if c.IsSet("exclude") {
		cfg.Exclude = splitList(c.String("exclude"))
	}
	if c.IsSet("concurrency") {
		cfg.Download.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("rate") {
		cfg.Download.Rate = c.Float64("rate")
	}
	if c.IsSet("retries") {
		cfg.Download.Retries = c.Uint64("retries")
	}
	if c.IsSet("retry-passes") {
		cfg.Download.RetryPasses = c.Int("retry-passes")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, oops.Wrapf(err, "invalid options")
	}
	return cfg, nil
}

func newSource(cfg config.Config) *redhat.Source {
	return redhat.New(cfg.DataDir,
		redhat.WithBaseURL(cfg.Download.BaseURL),
		redhat.WithDownloader(download.New(cfg.Download.Options()...)),
		redhat.WithRetryPasses(cfg.Download.RetryPasses),
	)
}

func openStore(cfg config.Config) (store.Store, error) {
	dir := filepath.Join(cfg.DataDir, redhat.Name, normDir)
	switch cfg.Store {
	case store.KindJSON:
		return jsonfile.New(dir), nil
	case store.KindBolt:
		s, err := boltdb.Open(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, oops.With("store", cfg.Store).Wrap(store.ErrUnknownKind)
}

func openIndex(s store.Store, reset bool) (*normindex.Index, error) {
	if reset {
		return normindex.OpenOrReset(s)
	}
	return normindex.Open(s)
}

func metadataClient(cfg config.Config) metadata.Client {
	return metadata.NewClient(filepath.Join(cfg.DataDir, redhat.Name))
}
