package kvstore

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltDatabase is a Database backed by go.etcd.io/bbolt. Each tree is a
// top-level bucket, created lazily and idempotently on first OpenTree.
type BoltDatabase struct {
	db *bolt.DB
}

// NewBoltDatabase opens (creating if necessary) a bbolt file at path.
func NewBoltDatabase(path string) (*BoltDatabase, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open bolt database: %w", err)
	}
	return &BoltDatabase{db: db}, nil
}

func (d *BoltDatabase) OpenTree(name string) (Tree, error) {
	err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open tree %q: %w", name, err)
	}
	return &boltTree{db: d.db, bucket: []byte(name)}, nil
}

func (d *BoltDatabase) Close() error {
	return d.db.Close()
}

type boltTree struct {
	db     *bolt.DB
	bucket []byte
}

func (t *boltTree) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		v := b.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (t *boltTree) Insert(key, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Put(key, value)
	})
}

func (t *boltTree) Remove(key []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Delete(key)
	})
}

func (t *boltTree) ContainsKey(key []byte) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

func (t *boltTree) Len() (int, error) {
	n := 0
	err := t.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(t.bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (t *boltTree) Clear() error {
	return t.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(t.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(t.bucket)
		return err
	})
}

func (t *boltTree) Scan(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return t.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(t.bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			cont, err := fn(k, v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}
