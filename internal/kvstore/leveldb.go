package kvstore

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDatabase is a Database backed by github.com/syndtr/goleveldb.
// goleveldb has no notion of separate column families, so each tree
// gets its own keyspace by prefixing every key with "<name>\x00".
type LevelDatabase struct {
	db *leveldb.DB
}

// NewLevelDatabase opens (creating if necessary) a goleveldb database
// directory at path.
func NewLevelDatabase(path string) (*LevelDatabase, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open leveldb database: %w", err)
	}
	return &LevelDatabase{db: db}, nil
}

func (d *LevelDatabase) OpenTree(name string) (Tree, error) {
	return &levelTree{db: d.db, prefix: append([]byte(name), 0x00)}, nil
}

func (d *LevelDatabase) Close() error {
	return d.db.Close()
}

type levelTree struct {
	db     *leveldb.DB
	prefix []byte
}

func (t *levelTree) fullKey(key []byte) []byte {
	full := make([]byte, 0, len(t.prefix)+len(key))
	full = append(full, t.prefix...)
	full = append(full, key...)
	return full
}

func (t *levelTree) Get(key []byte) ([]byte, bool, error) {
	v, err := t.db.Get(t.fullKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *levelTree) Insert(key, value []byte) error {
	return t.db.Put(t.fullKey(key), value, nil)
}

func (t *levelTree) Remove(key []byte) error {
	return t.db.Delete(t.fullKey(key), nil)
}

func (t *levelTree) ContainsKey(key []byte) (bool, error) {
	return t.db.Has(t.fullKey(key), nil)
}

func (t *levelTree) Len() (int, error) {
	n := 0
	iter := t.db.NewIterator(util.BytesPrefix(t.prefix), nil)
	defer iter.Release()
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (t *levelTree) Clear() error {
	iter := t.db.NewIterator(util.BytesPrefix(t.prefix), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return t.db.Write(batch, nil)
}

func (t *levelTree) Scan(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	full := t.fullKey(prefix)
	iter := t.db.NewIterator(util.BytesPrefix(full), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()[len(t.prefix):]
		cont, err := fn(key, iter.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}
