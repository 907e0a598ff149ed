package source

import (
	"context"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/types"
)

// Feed is a kind of advisory data published by a vendor.
type Feed int

const (
	FeedUnknown Feed = iota
	FeedVEX
	FeedCSAF
)

var (
	feeds = []string{"unknown", "vex", "csaf"}

	ErrUnsupportedFeed = xerrors.New("unsupported feed")
)

func NewFeed(s string) Feed {
	for i, name := range feeds {
		if strings.EqualFold(s, name) {
			return Feed(i)
		}
	}
	return FeedUnknown
}

func (f Feed) String() string {
	if f < 0 || int(f) >= len(feeds) {
		return feeds[FeedUnknown]
	}
	return feeds[f]
}

// Entry is one advisory file available locally.
type Entry struct {
	// Group is the directory the advisory is laid out in, usually its year.
	Group string
	ID    types.AdvisoryID
	Path  string
}

// Open returns a reader of the advisory document.
func (e Entry) Open() (io.ReadCloser, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, oops.With("advisory_id", e.ID).With("file_path", e.Path).Wrapf(err, "file open error")
	}
	return f, nil
}

// Load returns the whole advisory document.
func (e Entry) Load() ([]byte, error) {
	b, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, oops.With("advisory_id", e.ID).With("file_path", e.Path).Wrapf(err, "file read error")
	}
	return b, nil
}

// SyncStats counts the advisory files a Sync downloaded, and those which still failed after retries.
type SyncStats struct {
	Downloaded int
	Failed     int
}

// Source is a vendor publishing advisories.
type Source interface {
	Name() string
	Supports(feed Feed) bool
	// Sync brings the local copy of the feed up to date.
	Sync(ctx context.Context, feed Feed) (SyncStats, error)
	// Entries lists the advisories of the feed available locally.
	Entries(ctx context.Context, feed Feed) (iter.Seq[Entry], error)
}
