package updater

import (
	"context"
	"errors"
	"iter"
	"runtime"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/metadata"
	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/normindex"
	"github.com/vulnkit/vulnkit/pkg/reducer"
	"github.com/vulnkit/vulnkit/pkg/source"
)

const DefaultCheckpointInterval = 500

// Summary counts what happened to every advisory of a run.
type Summary struct {
	Total int
	// Skipped advisories were already normalized for every requested version.
	Skipped int
	Merged  int
	// Malformed advisories could not be decoded or carried no product status.
	Malformed int
	// Unreadable advisories could not be opened.
	Unreadable int
	// Unparseable counts product IDs with no known shape, across all merged advisories.
	Unparseable int
	Checkpoints int
	Elapsed     time.Duration

	// Downloaded and DownloadFailed are filled by the caller from the preceding sync.
	Downloaded     int
	DownloadFailed int
}

func (s Summary) Log() {
	log.Info("Normalization summary",
		log.Int("total", s.Total),
		log.Int("merged", s.Merged),
		log.Int("skipped", s.Skipped),
		log.Int("malformed", s.Malformed),
		log.Int("unreadable", s.Unreadable),
		log.Int("unparseable_ids", s.Unparseable),
		log.Int("checkpoints", s.Checkpoints),
		log.Int("downloaded", s.Downloaded),
		log.Int("download_failed", s.DownloadFailed),
		log.String("elapsed", s.Elapsed.Round(time.Millisecond).String()),
	)
}

type Option func(*Updater)

func WithWorkers(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithCheckpointInterval sets after how many merges the index is persisted during a run.
func WithCheckpointInterval(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.checkpointInterval = n
		}
	}
}

func WithClock(clock clock.Clock) Option {
	return func(u *Updater) {
		u.clock = clock
	}
}

// WithMetadata writes the run metadata on success. updateInterval decides when the next update is due.
func WithMetadata(client metadata.Client, meta metadata.Metadata, updateInterval time.Duration) Option {
	return func(u *Updater) {
		u.meta = &metaWriter{
			client:         client,
			base:           meta,
			updateInterval: updateInterval,
		}
	}
}

type metaWriter struct {
	client         metadata.Client
	base           metadata.Metadata
	updateInterval time.Duration
}

// Updater normalizes advisories concurrently and merges them into the index.
type Updater struct {
	index              *normindex.Index
	workers            int
	checkpointInterval int
	clock              clock.Clock
	meta               *metaWriter
}

func New(index *normindex.Index, opts ...Option) *Updater {
	u := &Updater{
		index:              index,
		workers:            runtime.NumCPU(),
		checkpointInterval: DefaultCheckpointInterval,
		clock:              clock.RealClock{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type result struct {
	entry    source.Entry
	versions []string
	reduced  reducer.Result
	skipped  bool
	err      error
}

// Run reduces every entry for the requested versions it still lacks.
// Workers only read the index; merges and checkpoints happen on the calling goroutine.
//
// The index is checkpointed once more at the end of the run, whatever happened to individual advisories.
// A cancelled run returns without that checkpoint.
func (u *Updater) Run(ctx context.Context, entries iter.Seq[source.Entry], versions []string) (Summary, error) {
	versions = lo.Uniq(lo.Compact(lo.Map(versions, func(v string, _ int) string { return strings.TrimSpace(v) })))
	if len(versions) == 0 {
		return Summary{}, oops.Errorf("no platform versions requested")
	}

	start := u.clock.Now()
	log.Info("Normalizing advisories", log.String("versions", strings.Join(versions, ",")), log.Int("workers", u.workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, u.workers)
	go func() {
		defer close(results)

		var g errgroup.Group
		g.SetLimit(u.workers)
		for entry := range entries {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				r := u.reduce(entry, versions)
				select {
				case results <- r:
				case <-runCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var sum Summary
	var runErr error
	for r := range results {
		// drain without merging once aborted or cancelled
		if runErr != nil || runCtx.Err() != nil {
			continue
		}
		if err := u.aggregate(&sum, r); err != nil {
			runErr = err
			cancel()
		}
	}
	sum.Elapsed = u.clock.Since(start)

	if runErr != nil {
		if err := u.index.Checkpoint(); err != nil {
			log.Error("Checkpoint failed after an aborted run", log.Err(err))
		}
		return sum, oops.Wrapf(runErr, "update aborted")
	}
	if err := ctx.Err(); err != nil {
		return sum, oops.Wrapf(err, "update cancelled")
	}

	if err := u.index.Checkpoint(); err != nil {
		return sum, oops.Wrapf(err, "final checkpoint error")
	}
	sum.Checkpoints++

	if err := u.writeMetadata(versions); err != nil {
		return sum, err
	}
	return sum, nil
}

// reduce runs on a worker.
func (u *Updater) reduce(entry source.Entry, requested []string) result {
	r := result{entry: entry}

	needed := u.index.VersionsNeeded(entry.ID, requested)
	if needed.Len() == 0 {
		r.skipped = true
		return r
	}
	r.versions = needed.Values()

	f, err := entry.Open()
	if err != nil {
		r.err = err
		return r
	}
	defer f.Close()

	adv, err := reducer.Decode(f)
	if err != nil {
		r.err = err
		return r
	}
	r.reduced, r.err = reducer.Reduce(adv, normalize.NewPlatforms(r.versions...))
	return r
}

// aggregate owns the summary and is the only caller of Merge during a run.
// Only a failure to persist is returned; per advisory failures are counted.
func (u *Updater) aggregate(sum *Summary, r result) error {
	sum.Total++
	switch {
	case r.skipped:
		sum.Skipped++
	case errors.Is(r.err, reducer.ErrMalformedAdvisory):
		sum.Malformed++
		log.Debug("Skipping a malformed advisory", log.AdvisoryID(r.entry.ID), log.FilePath(r.entry.Path), log.Err(r.err))
	case r.err != nil:
		sum.Unreadable++
		log.Warn("Skipping an unreadable advisory", log.AdvisoryID(r.entry.ID), log.Err(r.err))
	default:
		sum.Unparseable += r.reduced.Unparseable
		if err := u.index.Merge(r.entry.ID, r.reduced.Record, r.versions); err != nil {
			return err
		}
		sum.Merged++

		if sum.Merged%u.checkpointInterval == 0 {
			if err := u.index.Checkpoint(); err != nil {
				return err
			}
			sum.Checkpoints++
			log.Info("Checkpointed", log.Int("merged", sum.Merged))
		}
	}
	return nil
}

func (u *Updater) writeMetadata(versions []string) error {
	if u.meta == nil {
		return nil
	}

	now := u.clock.Now().UTC()
	meta := u.meta.base
	meta.Version = metadata.SchemaVersion
	meta.Platforms = versions
	meta.Advisories = u.index.Len()
	meta.UpdatedAt = now
	meta.NextUpdate = now.Add(u.meta.updateInterval)

	if err := u.meta.client.Update(meta); err != nil {
		return oops.Wrapf(err, "failed to store metadata")
	}
	return nil
}
