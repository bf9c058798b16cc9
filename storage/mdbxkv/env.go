package mdbxkv

import (
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/bitmap"

	"github.com/RoaringBitmap/roaring/v2"
)

// Env is one MDBX environment: single writer, many readers, snapshot
// isolation (§4.1, §5). Every table it will ever open must be listed in
// the tables passed to Open; the TableCfg only adds flags.
type Env struct {
	env    *mdbx.Env
	path   string
	tables []string
	cfg    TableCfg
	dbis   map[string]mdbx.DBI
}

// Options configures Env geometry; zero-value Options picks conservative
// defaults (datasize growth in 2MiB steps, up to 4TiB).
type Options struct {
	// SizeNow is the initial mapped size in bytes.
	SizeNow int64
	// SizeUpper is the maximum the environment may grow to.
	SizeUpper int64
	// MaxReaders bounds the number of concurrent read transactions.
	MaxReaders int
}

func defaultOptions() Options {
	return Options{
		SizeNow:    2 << 20,     // 2MiB
		SizeUpper:  4 << 40,     // 4TiB
		MaxReaders: 4096,
	}
}

// Open creates (if absent) and opens the environment directory at path,
// declaring exactly the given tables.
func Open(path string, tables []string, cfg TableCfg, opts *Options) (*Env, error) {
	o := defaultOptions()
	if opts != nil {
		if opts.SizeNow > 0 {
			o.SizeNow = opts.SizeNow
		}
		if opts.SizeUpper > 0 {
			o.SizeUpper = opts.SizeUpper
		}
		if opts.MaxReaders > 0 {
			o.MaxReaders = opts.MaxReaders
		}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "creating data directory %s", path)
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "allocating mdbx environment")
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(tables)+8)); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "setting max dbi count")
	}
	if err := env.SetOption(mdbx.OptMaxReaders, uint64(o.MaxReaders)); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "setting max readers")
	}
	if err := env.SetGeometry(-1, int(o.SizeNow), int(o.SizeUpper), 2<<20, -1, -1); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "setting mdbx geometry")
	}
	if err := env.Open(path, mdbx.Coalesce|mdbx.LifoReclaim, 0o644); err != nil {
		if mdbx.IsErrno(err, mdbx.ErrnoSys(28)) { // ENOSPC
			return nil, errkind.Wrap(errkind.NoSpaceLeftOnDevice, err, "opening %s", path)
		}
		return nil, errkind.Wrap(errkind.IoError, err, "opening mdbx environment %s", path)
	}

	e := &Env{env: env, path: path, tables: tables, cfg: cfg, dbis: map[string]mdbx.DBI{}}
	if err := e.openTables(); err != nil {
		_ = env.Close()
		return nil, err
	}
	return e, nil
}

func (e *Env) openTables() error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		for _, name := range e.tables {
			flags := mdbx.Create
			if item, ok := e.cfg[name]; ok && item.Flags&DupSort != 0 {
				flags |= mdbx.DupSort
			}
			if item, ok := e.cfg[name]; ok && item.Flags&IntegerKey != 0 {
				flags |= mdbx.IntegerKey
			}
			dbi, err := txn.OpenDBISimple(name, flags)
			if err != nil {
				return fmt.Errorf("opening table %q: %w", name, err)
			}
			e.dbis[name] = dbi
		}
		return nil
	})
}

// Close releases the environment. It must only be called once no readers
// or writers remain.
func (e *Env) Close() error {
	e.env.Close()
	return nil
}

// Path returns the directory this environment was opened from.
func (e *Env) Path() string { return e.path }

// Tx is a read-only snapshot transaction. Many may be open concurrently
// alongside the single writer (§5).
type Tx struct {
	txn  *mdbx.Txn
	dbis map[string]mdbx.DBI
}

// RwTx is the single write transaction allowed at a time.
type RwTx struct {
	Tx
}

// View runs fn against a fresh read-only snapshot.
func (e *Env) View(fn func(tx *Tx) error) error {
	return e.env.View(func(txn *mdbx.Txn) error {
		return fn(&Tx{txn: txn, dbis: e.dbis})
	})
}

// Update runs fn inside the single write transaction, committing on a nil
// return and rolling back otherwise. Per §4.2/§7, every batch's mutations
// are all-or-nothing at this boundary.
func (e *Env) Update(fn func(tx *RwTx) error) error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		return fn(&RwTx{Tx{txn: txn, dbis: e.dbis}})
	})
}

func (t *Tx) dbi(table string) mdbx.DBI {
	d, ok := t.dbis[table]
	if !ok {
		panic(fmt.Sprintf("mdbxkv: table %q was not declared at Open", table))
	}
	return d
}

// Get returns the raw value for key in table, or (nil, false) if absent.
func (t *Tx) Get(table string, key []byte) ([]byte, bool, error) {
	v, err := t.txn.Get(t.dbi(table), key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// ForEach iterates every (key, value) pair of table in key order.
func (t *Tx) ForEach(table string, fn func(k, v []byte) error) error {
	cur, err := t.txn.OpenCursor(t.dbi(table))
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Get(nil, nil, mdbx.First)
	for err == nil {
		if ferr := fn(k, v); ferr != nil {
			return ferr
		}
		k, v, err = cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

// SeekRange iterates key-value pairs from the first key >= from, in
// ascending order, until fn returns false or the table is exhausted.
func (t *Tx) SeekRange(table string, from []byte, fn func(k, v []byte) (more bool, err error)) error {
	cur, err := t.txn.OpenCursor(t.dbi(table))
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Get(from, nil, mdbx.SetRange)
	for err == nil {
		more, ferr := fn(k, v)
		if ferr != nil {
			return ferr
		}
		if !more {
			return nil
		}
		k, v, err = cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

// Put writes key -> val in table.
func (t *RwTx) Put(table string, key, val []byte) error {
	return t.txn.Put(t.dbi(table), key, val, 0)
}

// Delete removes key from table.
func (t *RwTx) Delete(table string, key []byte) error {
	err := t.txn.Del(t.dbi(table), key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

// GetBitmap reads and decodes a posting-list-shaped value, returning an
// empty bitmap if the key is absent.
func (t *Tx) GetBitmap(table string, key []byte) (*roaring.Bitmap, error) {
	raw, ok, err := t.Get(table, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return roaring.New(), nil
	}
	return bitmap.Decode(raw)
}

// PutBitmap encodes and writes bm at key in table.
func (t *RwTx) PutBitmap(table string, key []byte, bm *roaring.Bitmap) error {
	return t.Put(table, key, bitmap.EncodeBitmap(bm))
}

// UnionBitmap reads the bitmap at key, ORs extra into it, and writes the
// result back — the common read-modify-write done on every registration
// and every indexing commit (§4.2 step 2, §4.3 step 5).
func (t *RwTx) UnionBitmap(table string, key []byte, extra *roaring.Bitmap) error {
	cur, err := t.GetBitmap(table, key)
	if err != nil {
		return err
	}
	cur.Or(extra)
	return t.PutBitmap(table, key, cur)
}

// SubtractBitmap reads the bitmap at key, removes extra's members, and
// writes the result back (or deletes the key if the result is empty).
func (t *RwTx) SubtractBitmap(table string, key []byte, extra *roaring.Bitmap) error {
	cur, err := t.GetBitmap(table, key)
	if err != nil {
		return err
	}
	cur.AndNot(extra)
	if cur.IsEmpty() {
		return t.Delete(table, key)
	}
	return t.PutBitmap(table, key, cur)
}
