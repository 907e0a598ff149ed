package boltdb

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/set"
	"github.com/vulnkit/vulnkit/pkg/store"
	"github.com/vulnkit/vulnkit/pkg/types"
)

const (
	indexBucket  = "norm-index"
	recordBucket = "norm-record"
)

// Store keeps the index and every record in a single bolt file.
type Store struct {
	db   *bolt.DB
	path string
}

func Path(dir string) string {
	return filepath.Join(dir, "db", "vulnkit.db")
}

// Open opens or creates the bolt file under dir.
func Open(dir string) (*Store, error) {
	dbPath := Path(dir)
	eb := oops.With("db_path", dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, eb.Wrapf(err, "mkdir error")
	}

	log.Debug("Opening the store", log.FilePath(dbPath))
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, eb.Wrapf(err, "db open error")
	}
	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Location() string {
	return s.path
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Wrapf(err, "db close error")
	}
	return nil
}

func (s *Store) LoadIndex() (store.Index, error) {
	index := store.Index{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(indexBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var versions set.Ordered[string]
			if err := json.Unmarshal(v, &versions); err != nil {
				return oops.With("advisory_id", string(k)).Wrapf(errors.Join(store.ErrCorrupt, err), "corrupt index entry")
			}
			index[types.AdvisoryID(k)] = versions
			return nil
		})
	})
	if err != nil {
		return nil, oops.With("db_path", s.path).Wrapf(err, "index load error")
	}
	return index, nil
}

// SaveIndex replaces the whole index in one transaction.
func (s *Store) SaveIndex(index store.Index) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(indexBucket)) != nil {
			if err := tx.DeleteBucket([]byte(indexBucket)); err != nil {
				return oops.Wrapf(err, "bucket delete error")
			}
		}
		bucket, err := tx.CreateBucket([]byte(indexBucket))
		if err != nil {
			return oops.Wrapf(err, "bucket create error")
		}
		for id, versions := range index {
			if err = put(bucket, string(id), versions); err != nil {
				return oops.With("advisory_id", id).Wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		return oops.With("db_path", s.path).Wrapf(err, "index save error")
	}
	return nil
}

func (s *Store) LoadRecord(id types.AdvisoryID) (types.Record, bool, error) {
	eb := oops.With("db_path", s.path).With("advisory_id", id)

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return nil
		}
		// The value is only valid during the transaction
		if v := bucket.Get([]byte(id)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return types.Record{}, false, eb.Wrapf(err, "record load error")
	} else if value == nil {
		return types.Record{}, false, nil
	}

	var rec types.Record
	if err = json.Unmarshal(value, &rec); err != nil {
		return types.Record{}, false, eb.Wrapf(errors.Join(store.ErrCorrupt, err), "corrupt record")
	}
	return rec, true, nil
}

func (s *Store) SaveRecord(id types.AdvisoryID, rec types.Record) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		if err != nil {
			return oops.Wrapf(err, "bucket create error")
		}
		return put(bucket, string(id), rec)
	})
	if err != nil {
		return oops.With("db_path", s.path).With("advisory_id", id).Wrapf(err, "record save error")
	}
	return nil
}

func put(bucket *bolt.Bucket, key string, value any) error {
	v, err := json.Marshal(value)
	if err != nil {
		return oops.Wrapf(err, "json marshal error")
	}
	if err = bucket.Put([]byte(key), v); err != nil {
		return oops.Wrapf(err, "db put error")
	}
	return nil
}
