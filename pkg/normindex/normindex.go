package normindex

import (
	"errors"
	"slices"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/store"
	"github.com/vulnkit/vulnkit/pkg/types"
)

var (
	ErrCorruptIndex = xerrors.New("corrupt normalization index")
	ErrNoRecord     = xerrors.New("no normalized record")
)

// Index tracks which platform versions each advisory has been normalized for,
// and merges newly normalized records into the stored ones.
//
// Records are written through on Merge, while the index itself only reaches the store on Checkpoint.
// A crash in between leaves versions missing from the persisted index, and they are normalized again next time.
type Index struct {
	mu       sync.RWMutex
	store    store.Store
	versions store.Index
	merged   int
}

// Open loads the persisted index. A missing index is an empty one, a corrupt one fails with ErrCorruptIndex.
func Open(s store.Store) (*Index, error) {
	versions, err := s.LoadIndex()
	if err != nil {
		eb := oops.Code("corrupt_index").With("location", s.Location()).
			Hint("rerun with --reset-index to start from an empty index")
		if errors.Is(err, store.ErrCorrupt) {
			return nil, eb.Wrapf(errors.Join(ErrCorruptIndex, err), "index load error")
		}
		return nil, eb.Wrapf(err, "index load error")
	}
	log.Debug("Loaded the normalization index", log.String("location", s.Location()), log.Int("advisories", len(versions)))
	return &Index{
		store:    s,
		versions: versions,
	}, nil
}

// OpenOrReset is Open, except that a corrupt index is discarded with a warning.
func OpenOrReset(s store.Store) (*Index, error) {
	idx, err := Open(s)
	if errors.Is(err, ErrCorruptIndex) {
		log.Warn("Discarding the corrupt normalization index", log.String("location", s.Location()), log.Err(err))
		return &Index{
			store:    s,
			versions: store.Index{},
		}, nil
	}
	return idx, err
}

// VersionsNeeded returns the requested versions not yet normalized for the advisory.
func (i *Index) VersionsNeeded(id types.AdvisoryID, requested []string) set.Ordered[string] {
	i.mu.RLock()
	defer i.mu.RUnlock()

	needed := set.NewOrdered(requested...)
	if done, ok := i.versions[id]; ok {
		needed.Subtract(done.Set)
	}
	return needed
}

// Merge unions rec into the stored record of the advisory and records versions as done.
// It never removes versions, and removes keys only from the workaround bucket once they are
// covered by another remediation. Merging the same record twice is a no-op.
func (i *Index) Merge(id types.AdvisoryID, rec types.Record, versions []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	eb := oops.With("advisory_id", id)
	stored, _, err := i.store.LoadRecord(id)
	if err != nil {
		return eb.Wrapf(err, "record load error")
	}
	stored.Union(rec)
	stored.ExcludeWorkarounds()
	stored.PlatformVersions.Append(versions...)

	if err = i.store.SaveRecord(id, stored); err != nil {
		return eb.Wrapf(err, "record save error")
	}

	done, ok := i.versions[id]
	if !ok {
		done = set.NewOrdered[string]()
		i.versions[id] = done
	}
	done.Append(versions...)
	i.merged++
	log.Debug("Merged", log.AdvisoryID(id), log.Int("keys", stored.KeyCount()))
	return nil
}

// Checkpoint persists the whole index.
func (i *Index) Checkpoint() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.SaveIndex(i.versions); err != nil {
		return oops.With("location", i.store.Location()).Wrapf(err, "checkpoint error")
	}
	log.Debug("Checkpointed the normalization index", log.Int("advisories", len(i.versions)), log.Int("merged", i.merged))
	return nil
}

// Advisories returns every advisory known to the index, sorted.
func (i *Index) Advisories() []types.AdvisoryID {
	i.mu.RLock()
	defer i.mu.RUnlock()

	ids := make([]types.AdvisoryID, 0, len(i.versions))
	for id := range i.versions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Versions returns the platform versions already normalized for the advisory.
func (i *Index) Versions(id types.AdvisoryID) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if done, ok := i.versions[id]; ok {
		return done.Values()
	}
	return nil
}

// Record loads the stored record of the advisory.
func (i *Index) Record(id types.AdvisoryID) (types.Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rec, ok, err := i.store.LoadRecord(id)
	if err != nil {
		return types.Record{}, oops.With("advisory_id", id).Wrapf(err, "record load error")
	} else if !ok {
		return types.Record{}, oops.With("advisory_id", id).Wrap(ErrNoRecord)
	}
	return rec, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.versions)
}
