package pkg

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/metadata"
	"github.com/vulnkit/vulnkit/pkg/source"
	"github.com/vulnkit/vulnkit/pkg/source/redhat"
	"github.com/vulnkit/vulnkit/pkg/updater"
)

func update(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	idx, err := openIndex(s, c.Bool("reset-index"))
	if err != nil {
		return err
	}
	if c.Bool("reset-index") {
		// written again once the run succeeds
		if err = metadataClient(cfg).Delete(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	src := newSource(cfg)
	u := updater.New(idx,
		updater.WithWorkers(cfg.Workers),
		updater.WithCheckpointInterval(cfg.CheckpointInterval),
		updater.WithMetadata(metadataClient(cfg), metadata.Metadata{
			Source: redhat.Name,
			Store:  cfg.Store,
		}, cfg.UpdateInterval),
	)

	for _, name := range cfg.Sources[redhat.Name] {
		feed := source.NewFeed(name)
		eb := oops.With("source", src.Name()).With("feed", feed.String())

		var synced source.SyncStats
		if !c.Bool("skip-download") {
			if synced, err = src.Sync(ctx, feed); err != nil {
				return eb.Wrapf(err, "sync error")
			}
		}

		entries, err := src.Entries(ctx, feed)
		if err != nil {
			return eb.Wrapf(err, "entries error")
		}

		sum, err := u.Run(ctx, entries, cfg.Platforms)
		sum.Downloaded, sum.DownloadFailed = synced.Downloaded, synced.Failed
		sum.Log()
		if err != nil {
			return eb.Wrapf(err, "normalization error")
		}
	}

	log.Info("Update completed", log.String("store", s.Location()))
	return nil
}
