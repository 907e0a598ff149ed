package jsonfile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/vulnkit/vulnkit/pkg/store"
	"github.com/vulnkit/vulnkit/pkg/types"
	"github.com/vulnkit/vulnkit/pkg/utils"
)

const (
	indexFile  = "norm_index.json"
	recordExt  = ".norm.json"
	defaultDir = "norm"
)

// Store keeps one JSON file per advisory, <dir>/<group>/<id>.norm.json, and the index in <dir>/norm_index.json.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Location() string {
	return s.dir
}

func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, indexFile)
}

// RecordPath returns where the record of the advisory lives.
// IDs without a year segment are kept under a fallback directory.
func (s *Store) RecordPath(id types.AdvisoryID) string {
	group := id.Group()
	if group == "" {
		group = defaultDir
	}
	return filepath.Join(s.dir, group, id.String()+recordExt)
}

func (s *Store) LoadIndex() (store.Index, error) {
	path := s.IndexPath()
	index := store.Index{}
	if err := utils.UnmarshalJSONFile(&index, path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.Index{}, nil
		}
		return nil, decodeError(err, path)
	}
	return index, nil
}

func (s *Store) SaveIndex(index store.Index) error {
	if err := utils.WriteJSONFile(index, s.IndexPath()); err != nil {
		return oops.Wrapf(err, "index write error")
	}
	return nil
}

func (s *Store) LoadRecord(id types.AdvisoryID) (types.Record, bool, error) {
	path := s.RecordPath(id)
	var rec types.Record
	if err := utils.UnmarshalJSONFile(&rec, path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Record{}, false, nil
		}
		return types.Record{}, false, decodeError(err, path)
	}
	return rec, true, nil
}

func (s *Store) SaveRecord(id types.AdvisoryID, rec types.Record) error {
	if err := utils.WriteJSONFile(rec, s.RecordPath(id)); err != nil {
		return oops.With("advisory_id", id).Wrapf(err, "record write error")
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// decodeError marks errors of files which exist but do not decode as corruption.
func decodeError(err error, path string) error {
	eb := oops.With("file_path", path)
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "json_decode_error" {
		return eb.Code("corrupt").Wrapf(errors.Join(store.ErrCorrupt, err), "corrupt file")
	}
	return eb.Wrapf(err, "file read error")
}
