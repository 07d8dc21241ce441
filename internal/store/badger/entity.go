package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/library-server/internal/store"
)

// Key layout under an entity prefix p:
//
//	p rec:<id>                                record JSON
//	p ord:<seq>                               id, in insertion order
//	p seq:<id>                                seq assigned at creation
//	p idx:<index>:<value>                     id (unique index)
//	p midx:<index>:<value>:<seq>:<id>         empty (multi index)
//
// Multi index entries embed the sequence so a prefix scan over one value
// yields ids in insertion order and a key-only scan counts them.
const (
	recPart  = "rec:"
	ordPart  = "ord:"
	seqPart  = "seq:"
	idxPart  = "idx:"
	midxPart = "midx:"
)

// Entity provides generic CRUD operations for any domain type.
type Entity[T any] struct {
	db       *badger.DB
	prefix   string
	seq      *badger.Sequence
	notFound error
	unique   []Index[T]
	multi    []Index[T]
}

// Index defines a secondary index on an entity.
type Index[T any] struct {
	name     string
	keyGen   func(*T) []string
	encode   func(string) string // applied to generated keys and lookups
	conflict error               // returned on unique collisions
}

func (idx Index[T]) keys(v *T) []string {
	raw := idx.keyGen(v)
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, idx.encode(k))
	}
	return out
}

// NewEntity creates a new Entity for type T stored under prefix.
// notFound is returned by lookups that miss.
func NewEntity[T any](db *badger.DB, prefix string, notFound error) (*Entity[T], error) {
	seq, err := db.GetSequence([]byte(prefix+"meta:seq"), 100)
	if err != nil {
		return nil, fmt.Errorf("get %s sequence: %w", strings.TrimSuffix(prefix, ":"), err)
	}
	return &Entity[T]{db: db, prefix: prefix, seq: seq, notFound: notFound}, nil
}

func identity(s string) string { return s }

// WithUniqueIndex adds an index whose values must be unique across entities.
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string, conflict error) *Entity[T] {
	e.unique = append(e.unique, Index[T]{name: name, keyGen: keyGen, encode: identity, conflict: conflict})
	return e
}

// WithMultiIndex adds a non-unique index. encode must map values to strings
// without ':'; nil means values are used as-is.
func (e *Entity[T]) WithMultiIndex(name string, keyGen func(*T) []string, encode func(string) string) *Entity[T] {
	if encode == nil {
		encode = identity
	}
	e.multi = append(e.multi, Index[T]{name: name, keyGen: keyGen, encode: encode})
	return e
}

// Close releases the leased sequence range.
func (e *Entity[T]) Close() error {
	return e.seq.Release()
}

func (e *Entity[T]) recKey(id string) []byte { return []byte(e.prefix + recPart + id) }
func (e *Entity[T]) seqKey(id string) []byte { return []byte(e.prefix + seqPart + id) }
func (e *Entity[T]) ordKey(seq string) []byte {
	return []byte(e.prefix + ordPart + seq)
}

func (e *Entity[T]) idxKey(name, value string) []byte {
	return []byte(e.prefix + idxPart + name + ":" + value)
}

func (e *Entity[T]) midxPrefix(name, value string) []byte {
	return []byte(e.prefix + midxPart + name + ":" + value + ":")
}

func (e *Entity[T]) midxKey(name, value, seq, id string) []byte {
	return append(e.midxPrefix(name, value), seq+":"+id...)
}

func formatSeq(n uint64) string { return fmt.Sprintf("%020d", n) }

// Create stores entity under id.
// Returns store.ErrAlreadyExists if the id is taken, or the index's conflict
// error on a unique index collision.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	n, err := e.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	seq := formatSeq(n)

	return e.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(e.recKey(id)); err == nil {
			return store.ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := e.checkUnique(txn, id, entity); err != nil {
			return err
		}

		sets := map[string][]byte{
			string(e.recKey(id)):  data,
			string(e.ordKey(seq)): []byte(id),
			string(e.seqKey(id)):  []byte(seq),
		}
		for _, idx := range e.unique {
			for _, k := range idx.keys(entity) {
				sets[string(e.idxKey(idx.name, k))] = []byte(id)
			}
		}
		for _, idx := range e.multi {
			for _, k := range idx.keys(entity) {
				sets[string(e.midxKey(idx.name, k, seq, id))] = nil
			}
		}
		for k, v := range sets {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("failed to set key: %w", err)
			}
		}
		return nil
	})
}

// checkUnique fails when a unique key of entity belongs to another id.
func (e *Entity[T]) checkUnique(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.unique {
		for _, k := range idx.keys(entity) {
			item, err := txn.Get(e.idxKey(idx.name, k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to check index key: %w", err)
			}
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(owner) != id {
				return idx.conflict
			}
		}
	}
	return nil
}

// Get retrieves an entity by ID.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.getTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (e *Entity[T]) getTxn(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.recKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, e.notFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &entity, nil
}

// GetByIndex retrieves an entity through a unique index.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.idxKey(indexName, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return e.notFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entity, err = e.getTxn(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Update replaces an existing entity and rewrites its index entries.
func (e *Entity[T]) Update(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.db.Update(func(txn *badger.Txn) error {
		old, err := e.getTxn(txn, id)
		if err != nil {
			return err
		}

		item, err := txn.Get(e.seqKey(id))
		if err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		seqBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		seq := string(seqBytes)

		if err := e.checkUnique(txn, id, entity); err != nil {
			return err
		}

		for _, idx := range e.unique {
			for _, k := range idx.keys(old) {
				if err := txn.Delete(e.idxKey(idx.name, k)); err != nil {
					return fmt.Errorf("failed to delete old index key: %w", err)
				}
			}
		}
		for _, idx := range e.multi {
			for _, k := range idx.keys(old) {
				if err := txn.Delete(e.midxKey(idx.name, k, seq, id)); err != nil {
					return fmt.Errorf("failed to delete old index key: %w", err)
				}
			}
		}

		if err := txn.Set(e.recKey(id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		for _, idx := range e.unique {
			for _, k := range idx.keys(entity) {
				if err := txn.Set(e.idxKey(idx.name, k), []byte(id)); err != nil {
					return fmt.Errorf("failed to set index key: %w", err)
				}
			}
		}
		for _, idx := range e.multi {
			for _, k := range idx.keys(entity) {
				if err := txn.Set(e.midxKey(idx.name, k, seq, id), nil); err != nil {
					return fmt.Errorf("failed to set index key: %w", err)
				}
			}
		}
		return nil
	})
}

// List returns an iterator over all entities in insertion order.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	prefix := []byte(e.prefix + ordPart)
	return e.scan(ctx, prefix, func(item *badger.Item) (string, error) {
		id, err := item.ValueCopy(nil)
		return string(id), err
	})
}

// ListByIndex iterates entities whose multi index name holds value, in
// insertion order.
func (e *Entity[T]) ListByIndex(ctx context.Context, name, value string) iter.Seq2[*T, error] {
	prefix := e.midxPrefix(name, e.multiIndex(name).encode(value))
	return e.scan(ctx, prefix, func(item *badger.Item) (string, error) {
		// <prefix><seq>:<id>
		rest := string(item.Key()[len(prefix):])
		_, id, ok := strings.Cut(rest, ":")
		if !ok {
			return "", fmt.Errorf("malformed index key %q", item.Key())
		}
		return id, nil
	})
}

func (e *Entity[T]) scan(ctx context.Context, prefix []byte, idOf func(*badger.Item) (string, error)) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		err := e.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}

				id, err := idOf(it.Item())
				if err != nil {
					return err
				}
				entity, err := e.getTxn(txn, id)
				if err != nil {
					return err
				}
				if !yield(entity, nil) {
					return errStop
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, err)
		}
	}
}

var errStop = errors.New("stop iteration")

// Collect drains an iterator into a slice.
func Collect[T any](seq iter.Seq2[*T, error]) ([]*T, error) {
	out := make([]*T, 0)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns the number of stored entities with a key-only scan.
func (e *Entity[T]) Count(ctx context.Context) (int, error) {
	var n int
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = countPrefix(ctx, txn, []byte(e.prefix+ordPart))
		return err
	})
	return n, err
}

// CountByIndexValues counts multi index entries per requested value in one
// read transaction. Values with no entries are omitted.
func (e *Entity[T]) CountByIndexValues(ctx context.Context, name string, values []string) (map[string]int, error) {
	idx := e.multiIndex(name)
	counts := make(map[string]int, len(values))

	err := e.db.View(func(txn *badger.Txn) error {
		for _, v := range values {
			if _, done := counts[v]; done {
				continue
			}
			n, err := countPrefix(ctx, txn, e.midxPrefix(name, idx.encode(v)))
			if err != nil {
				return err
			}
			if n > 0 {
				counts[v] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func countPrefix(ctx context.Context, txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false // Only need keys

	it := txn.NewIterator(opts)
	defer it.Close()

	var n int
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (e *Entity[T]) multiIndex(name string) Index[T] {
	for _, idx := range e.multi {
		if idx.name == name {
			return idx
		}
	}
	panic(fmt.Sprintf("badger: unknown multi index %q on %s", name, e.prefix))
}
