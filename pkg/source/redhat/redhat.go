package redhat

import (
	"bufio"
	"context"
	"io"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/vulnkit/vulnkit/pkg/download"
	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/source"
	"github.com/vulnkit/vulnkit/pkg/types"
	"github.com/vulnkit/vulnkit/pkg/utils"
)

const (
	Name = "redhat"

	DefaultBaseURL = "https://security.access.redhat.com/data/csaf/v2/vex"

	indexFile = "index.txt"
	vexDir    = "vex"
	advExt    = ".json"

	defaultRetryPasses = 2
)

type Option func(*Source)

// WithBaseURL overrides where the VEX feed is published.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		s.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithDownloader(c *download.Client) Option {
	return func(s *Source) {
		s.client = c
	}
}

// WithRetryPasses sets how many extra passes are made over the files which failed to download.
func WithRetryPasses(n int) Option {
	return func(s *Source) {
		s.passes = n
	}
}

// Source mirrors the Red Hat VEX feed into <dir>/vex/<year>/<id>.json.
type Source struct {
	dir     string
	baseURL string
	client  *download.Client
	passes  int
}

var _ source.Source = (*Source)(nil)

func New(dataDir string, opts ...Option) *Source {
	s := &Source{
		dir:     filepath.Join(dataDir, Name, vexDir),
		baseURL: DefaultBaseURL,
		passes:  defaultRetryPasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = download.New()
	}
	return s
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) Supports(feed source.Feed) bool {
	return feed == source.FeedVEX
}

// Dir returns where the advisories are mirrored.
func (s *Source) Dir() string {
	return s.dir
}

// ValidID reports whether the advisory can be laid out under the data dir.
func ValidID(id types.AdvisoryID) bool {
	return id.Group() != "" && localName(id.String())
}

// localName reports whether s is a single path segment staying in its directory.
func localName(s string) bool {
	return filepath.IsLocal(s) && !strings.ContainsAny(s, `/\`)
}

// Path returns the local path of the advisory.
func (s *Source) Path(id types.AdvisoryID) string {
	return filepath.Join(s.dir, id.Group(), id.String()+advExt)
}

func (s *Source) url(e source.Entry) string {
	u, err := url.JoinPath(s.baseURL, e.Group, e.ID.String()+advExt)
	if err != nil {
		return s.baseURL + "/" + e.Group + "/" + e.ID.String() + advExt
	}
	return u
}

// FetchIndex downloads index.txt and returns the advisories it lists.
func (s *Source) FetchIndex(ctx context.Context) ([]source.Entry, error) {
	eb := oops.With("source", Name)

	path := filepath.Join(s.dir, indexFile)
	u := s.baseURL + "/" + indexFile
	log.Info("Fetching the advisory index", log.URL(u))

	stats := s.client.Download(ctx, []download.Item{{URL: u, Dest: path}})
	if stats.Failed > 0 {
		return nil, eb.Wrapf(stats.Failures[0].Err, "index fetch error")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eb.With("file_path", path).Wrapf(err, "file open error")
	}
	defer f.Close()

	entries, err := s.ParseIndex(f)
	if err != nil {
		return nil, eb.With("file_path", path).Wrapf(err, "index parse error")
	}
	return entries, nil
}

// ParseIndex reads lines such as "2025/cve-2025-0001.json" into entries pointing at their local path.
func (s *Source) ParseIndex(r io.Reader) ([]source.Entry, error) {
	var entries []source.Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		i := strings.LastIndex(line, "/")
		if i <= 0 || !strings.HasSuffix(line, advExt) {
			log.Debug("Skipping an index line", log.String("line", line))
			continue
		}
		group, name := line[:i], strings.TrimSuffix(line[i+1:], advExt)
		id := types.NewAdvisoryID(name)
		if !localName(group) || !localName(id.String()) {
			log.Warn("Skipping an index line outside the data dir", log.String("line", line))
			continue
		}
		entries = append(entries, source.Entry{
			Group: group,
			ID:    id,
			Path:  filepath.Join(s.dir, group, id.String()+advExt),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, oops.Wrapf(err, "scan error")
	}
	return entries, nil
}

// Sync downloads the advisories listed in the index which are not available locally yet.
// Files which still fail after the retry passes are logged, not returned as an error.
func (s *Source) Sync(ctx context.Context, feed source.Feed) (source.SyncStats, error) {
	if !s.Supports(feed) {
		return source.SyncStats{}, oops.With("source", Name).With("feed", feed.String()).Wrapf(source.ErrUnsupportedFeed, "sync error")
	}

	entries, err := s.FetchIndex(ctx)
	if err != nil {
		return source.SyncStats{}, oops.Wrapf(err, "sync error")
	}

	missing, err := s.missing(entries)
	if err != nil {
		return source.SyncStats{}, oops.Wrapf(err, "sync error")
	}
	log.Info("Advisory index fetched", log.Int("advisories", len(entries)), log.Int("missing", len(missing)))

	stats, err := s.download(ctx, missing)
	if err != nil {
		return source.SyncStats{}, oops.Wrapf(err, "sync error")
	}
	return source.SyncStats{Downloaded: stats.Succeeded, Failed: stats.Failed}, nil
}

// Fetch downloads the given advisories when they are not available locally yet.
func (s *Source) Fetch(ctx context.Context, ids []types.AdvisoryID) (download.Stats, error) {
	valid, invalid := lo.FilterReject(ids, func(id types.AdvisoryID, _ int) bool { return ValidID(id) })
	for _, id := range invalid {
		log.Warn("Skipping an invalid advisory ID", log.AdvisoryID(id))
	}
	entries := lo.Map(valid, func(id types.AdvisoryID, _ int) source.Entry {
		return source.Entry{Group: id.Group(), ID: id, Path: s.Path(id)}
	})
	missing, err := s.missing(entries)
	if err != nil {
		return download.Stats{}, oops.Wrapf(err, "fetch error")
	}
	return s.download(ctx, missing)
}

func (s *Source) missing(entries []source.Entry) ([]source.Entry, error) {
	var missing []source.Entry
	for _, e := range entries {
		ok, err := utils.Exists(e.Path)
		if err != nil {
			return nil, oops.With("file_path", e.Path).Wrapf(err, "stat error")
		} else if !ok {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

func (s *Source) download(ctx context.Context, entries []source.Entry) (download.Stats, error) {
	if len(entries) == 0 {
		return download.Stats{}, nil
	}

	items := lo.Map(entries, func(e source.Entry, _ int) download.Item {
		return download.Item{URL: s.url(e), Dest: e.Path}
	})

	log.Info("Downloading advisories", log.Int("count", len(items)))
	stats := s.client.DownloadWithRetries(ctx, items, s.passes)
	if err := ctx.Err(); err != nil {
		return stats, oops.Wrapf(err, "download cancelled")
	}

	logger := log.WithPrefix(Name)
	logger.Info("Advisories downloaded", log.Int("succeeded", stats.Succeeded), log.Int("failed", stats.Failed))
	for _, f := range stats.Failures {
		logger.Warn("Advisory download failed", log.URL(f.URL), log.FilePath(f.Dest), log.Err(f.Err))
	}
	return stats, nil
}

// Entries lists the advisories mirrored locally, sorted by path.
func (s *Source) Entries(_ context.Context, feed source.Feed) (iter.Seq[source.Entry], error) {
	eb := oops.With("source", Name).With("dir_path", s.dir)
	if !s.Supports(feed) {
		return nil, eb.With("feed", feed.String()).Wrapf(source.ErrUnsupportedFeed, "entries error")
	}

	paths, err := filepath.Glob(filepath.Join(s.dir, "*", "*"+advExt))
	if err != nil {
		return nil, eb.Wrapf(err, "glob error")
	}
	slices.Sort(paths)

	return func(yield func(source.Entry) bool) {
		for _, path := range paths {
			e := source.Entry{
				Group: filepath.Base(filepath.Dir(path)),
				ID:    types.NewAdvisoryID(strings.TrimSuffix(filepath.Base(path), advExt)),
				Path:  path,
			}
			if !yield(e) {
				return
			}
		}
	}, nil
}
