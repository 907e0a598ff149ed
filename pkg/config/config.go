package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v2"

	"github.com/vulnkit/vulnkit/pkg/download"
	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/source"
	"github.com/vulnkit/vulnkit/pkg/source/redhat"
	"github.com/vulnkit/vulnkit/pkg/store"
	"github.com/vulnkit/vulnkit/pkg/types"
	"github.com/vulnkit/vulnkit/pkg/updater"
	"github.com/vulnkit/vulnkit/pkg/utils"
)

// Config holds the settings of every command. Command line flags take precedence over it.
type Config struct {
	DataDir            string              `yaml:"data_dir"`
	Sources            map[string][]string `yaml:"sources"`
	Platforms          []string            `yaml:"platforms"`
	Store              string              `yaml:"store"`
	Workers            int                 `yaml:"workers"`
	CheckpointInterval int                 `yaml:"checkpoint_interval"`
	UpdateInterval     time.Duration       `yaml:"update_interval"`

	Priority []string `yaml:"priority"`
	Exclude  []string `yaml:"exclude"`

	Download Download `yaml:"download"`
}

type Download struct {
	BaseURL     string  `yaml:"base_url"`
	Concurrency int     `yaml:"concurrency"`
	Rate        float64 `yaml:"rate"`
	Burst       int     `yaml:"burst"`
	Retries     uint64  `yaml:"retries"`
	RetryPasses int     `yaml:"retry_passes"`
}

func Default() Config {
	return Config{
		DataDir:            filepath.Join(utils.CacheDir(), "data"),
		Sources:            map[string][]string{redhat.Name: {source.FeedVEX.String()}},
		Platforms:          []string{"8", "9"},
		Store:              store.KindJSON,
		Workers:            runtime.NumCPU(),
		CheckpointInterval: updater.DefaultCheckpointInterval,
		UpdateInterval:     24 * time.Hour,
		Download: Download{
			BaseURL:     redhat.DefaultBaseURL,
			Concurrency: download.DefaultConcurrency,
			Burst:       1,
			Retries:     download.DefaultRetries,
			RetryPasses: 2,
		},
	}
}

// Load reads the YAML file at path over the defaults. Keys absent from the file keep their default value.
func Load(path string) (Config, error) {
	eb := oops.With("file_path", path)
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, eb.Wrapf(err, "failed to open config file")
	}
	defer f.Close()

	d := yaml.NewDecoder(f)
	d.SetStrict(true)
	if err = d.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, eb.Wrapf(err, "failed to parse config file")
	}

	if err = cfg.Validate(); err != nil {
		return Config{}, eb.Wrapf(err, "invalid config")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.DataDir == "":
		return oops.Errorf("data_dir is empty")
	case len(c.Platforms) == 0:
		return oops.Errorf("no platforms")
	case !slices.Contains([]string{store.KindJSON, store.KindBolt}, c.Store):
		return oops.With("store", c.Store).Wrap(store.ErrUnknownKind)
	case c.Workers <= 0, c.CheckpointInterval <= 0, c.Download.Concurrency <= 0:
		return oops.Errorf("workers, checkpoint_interval and download.concurrency must be positive")
	case c.Download.Rate < 0, c.Download.RetryPasses < 0:
		return oops.Errorf("download.rate and download.retry_passes must not be negative")
	}

	for name, feeds := range c.Sources {
		if name != redhat.Name {
			return oops.With("source", name).Errorf("unknown source")
		}
		for _, feed := range feeds {
			if !redhat.New(c.DataDir).Supports(source.NewFeed(feed)) {
				return oops.With("source", name).With("feed", feed).Wrap(source.ErrUnsupportedFeed)
			}
		}
	}

	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the matching policy. An empty priority keeps the default one.
func (c Config) Policy() (matcher.Policy, error) {
	policy := matcher.DefaultPolicy()
	if len(c.Priority) > 0 {
		priority, err := types.ParseCategories(c.Priority)
		if err != nil {
			return matcher.Policy{}, oops.With("priority", c.Priority).Wrapf(err, "invalid priority")
		}
		policy.Priority = priority
	}

	exclude, err := types.ParseCategories(c.Exclude)
	if err != nil {
		return matcher.Policy{}, oops.With("exclude", c.Exclude).Wrapf(err, "invalid exclusion")
	}
	policy.Exclude = set.New(exclude...)
	return policy, nil
}

// Options configures the downloader.
func (d Download) Options() []download.Option {
	return []download.Option{
		download.WithConcurrency(d.Concurrency),
		download.WithRateLimit(d.Rate, d.Burst),
		download.WithRetries(d.Retries),
	}
}
