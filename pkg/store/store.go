package store

import (
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/types"
)

const (
	KindJSON = "json"
	KindBolt = "bolt"
)

var (
	// ErrCorrupt is returned when persisted data exists but cannot be decoded.
	ErrCorrupt = xerrors.New("corrupt store")
	// ErrUnknownKind is returned by callers selecting a backend by name.
	ErrUnknownKind = xerrors.New("unknown store kind")
)

// Index maps an advisory to the platform versions already normalized for it.
type Index map[types.AdvisoryID]set.Ordered[string]

// Store persists normalized records and the normalization index.
type Store interface {
	// LoadIndex returns an empty index when nothing has been persisted yet.
	LoadIndex() (Index, error)
	SaveIndex(Index) error

	// LoadRecord reports false when the advisory has no stored record.
	LoadRecord(id types.AdvisoryID) (types.Record, bool, error)
	SaveRecord(id types.AdvisoryID, rec types.Record) error

	// Location is a human readable path of the backing storage, used in diagnostics.
	Location() string
	Close() error
}
