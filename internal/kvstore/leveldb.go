package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent Store backed by an on-disk LevelDB database.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if necessary) the database in dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &ldb_opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &LevelDB{db: db}, nil
}

func (s *LevelDB) Get(_ context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return value, nil
}

func (s *LevelDB) Put(_ context.Context, key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put %s: %w", key, err)
	}
	return nil
}

func (s *LevelDB) Delete(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix in a single batch.
func (s *LevelDB) DeletePrefix(_ context.Context, prefix string) error {
	iter := s.db.NewIterator(ldb_util.BytesPrefix([]byte(prefix)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb scan %s: %w", prefix, err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb delete prefix %s: %w", prefix, err)
	}
	return nil
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}

var _ Store = (*LevelDB)(nil)
