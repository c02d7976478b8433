package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixVertex        = byte(0x01) // vertex:vertexID -> JSON(vertexRecord)
	prefixEdge          = byte(0x02) // edge:edgeID -> JSON(edgeRecord)
	prefixLabelIndex    = byte(0x03) // label:labelName:vertexID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:vertexID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:vertexID:edgeID -> []byte{}
	prefixUniqueIndex   = byte(0x06) // unique:label:property:valueKey -> vertexID
	prefixMeta          = byte(0x07) // meta:name -> engine bookkeeping
)

// maxConflictRetries bounds retries of a write transaction that lost a race
// on the same keys.
const maxConflictRetries = 3

// BadgerEngine provides persistent storage using BadgerDB.
//
// Features:
//   - Every mutation is a single ACID transaction
//   - Unique constraints backed by index keys, so two writers racing for the
//     same caption cannot both commit
//   - Secondary indexes for labels and adjacency
//
// Key Structure:
//   - Vertices: 0x01 + vertexID -> JSON(vertexRecord)
//   - Edges: 0x02 + edgeID -> JSON(edgeRecord)
//   - Label Index: 0x03 + label + 0x00 + vertexID -> empty
//   - Outgoing Index: 0x04 + vertexID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + vertexID + 0x00 + edgeID -> empty
//   - Unique Index: 0x06 + label + 0x00 + property + 0x00 + value -> vertexID
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data", constraints...)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db     *badger.DB
	seq    *badger.Sequence
	unique *ConstraintSet

	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging. Nil silences it.
	Logger badger.Logger

	// Constraints are the unique (label, property) pairs to enforce.
	Constraints []UniqueConstraint
}

// NewBadgerEngine opens (or creates) a persistent engine in dataDir.
func NewBadgerEngine(dataDir string, constraints ...UniqueConstraint) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir:     dataDir,
		Constraints: constraints,
	})
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory(constraints ...UniqueConstraint) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory:    true,
		Constraints: constraints,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	} else if dir == "" {
		return nil, fmt.Errorf("badger data directory is required")
	}

	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)

	// The knowledge base is small; keep the footprint container friendly.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte{prefixMeta, 's', 'e', 'q'}, 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sequence: %w", err)
	}

	return &BadgerEngine{
		db:     db,
		seq:    seq,
		unique: NewConstraintSet(opts.Constraints...),
	}, nil
}

// FindVertices returns vertices matching filter in insertion order.
func (b *BadgerEngine) FindVertices(ctx context.Context, filter Filter, page Page) ([]PropertyMap, error) {
	if err := b.checkOpen(ctx); err != nil {
		return nil, err
	}

	var matches []*vertexRecord
	err := b.db.View(func(txn *badger.Txn) error {
		collect := func(v *vertexRecord) {
			if v.matches(filter) {
				matches = append(matches, v)
			}
		}

		if len(filter.Labels) == 0 {
			return iteratePrefix(txn, []byte{prefixVertex}, func(item *badger.Item) error {
				return item.Value(func(val []byte) error {
					v, err := decodeVertex(val)
					if err != nil {
						return err
					}
					collect(v)
					return nil
				})
			})
		}

		for _, label := range filter.distinctLabels() {
			prefix := labelIndexPrefix(label)
			err := iteratePrefix(txn, prefix, func(item *badger.Item) error {
				vid := string(item.Key()[len(prefix):])
				v, err := getVertex(txn, vid)
				if err != nil {
					return err
				}
				collect(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Seq < matches[j].Seq })
	if page.Offset > 0 {
		if page.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[page.Offset:]
	}
	if page.Limit > 0 && len(matches) > page.Limit {
		matches = matches[:page.Limit]
	}

	out := make([]PropertyMap, len(matches))
	for i, v := range matches {
		out[i] = v.propertyMap()
	}
	return out, nil
}

// GetVertex retrieves a vertex by id.
func (b *BadgerEngine) GetVertex(ctx context.Context, id any) (PropertyMap, error) {
	vid, err := idString(id)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(ctx); err != nil {
		return nil, err
	}

	var v *vertexRecord
	err = b.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = getVertex(txn, vid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v.propertyMap(), nil
}

// CreateVertex inserts a vertex, claiming its unique values in the same
// transaction.
func (b *BadgerEngine) CreateVertex(ctx context.Context, label string, props map[string]any) (PropertyMap, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidData)
	}
	clean, err := validateProps(props)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(ctx); err != nil {
		return nil, err
	}

	seq, err := b.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("allocating sequence: %w", err)
	}
	v := &vertexRecord{ID: uuid.NewString(), Label: label, Seq: seq, Props: clean}

	err = b.update(func(txn *badger.Txn) error {
		if err := b.claimUnique(txn, label, clean, v.ID); err != nil {
			return err
		}
		data, err := encodeVertex(v)
		if err != nil {
			return err
		}
		if err := txn.Set(vertexKey(v.ID), data); err != nil {
			return err
		}
		return txn.Set(labelIndexKey(label, v.ID), []byte{})
	})
	if err != nil {
		return nil, err
	}
	return v.propertyMap(), nil
}

// SetProperties overwrites properties on an existing vertex.
func (b *BadgerEngine) SetProperties(ctx context.Context, id any, props map[string]any) error {
	vid, err := idString(id)
	if err != nil {
		return err
	}
	clean, err := validateProps(props)
	if err != nil {
		return err
	}
	if err := b.checkOpen(ctx); err != nil {
		return err
	}

	return b.update(func(txn *badger.Txn) error {
		v, err := getVertex(txn, vid)
		if err != nil {
			return err
		}

		old := make(map[string]any)
		for k := range clean {
			if prev, had := v.Props[k]; had {
				old[k] = prev
			}
		}
		if err := b.releaseUnique(txn, v.Label, old, vid); err != nil {
			return err
		}
		if err := b.claimUnique(txn, v.Label, clean, vid); err != nil {
			return err
		}

		for k, val := range clean {
			v.Props[k] = val
		}
		data, err := encodeVertex(v)
		if err != nil {
			return err
		}
		return txn.Set(vertexKey(vid), data)
	})
}

// RemoveProperties drops properties from an existing vertex.
func (b *BadgerEngine) RemoveProperties(ctx context.Context, id any, keys []string) error {
	vid, err := idString(id)
	if err != nil {
		return err
	}
	if err := b.checkOpen(ctx); err != nil {
		return err
	}

	return b.update(func(txn *badger.Txn) error {
		v, err := getVertex(txn, vid)
		if err != nil {
			return err
		}
		removed := make(map[string]any)
		for _, k := range keys {
			if prev, had := v.Props[k]; had {
				removed[k] = prev
				delete(v.Props, k)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		if err := b.releaseUnique(txn, v.Label, removed, vid); err != nil {
			return err
		}
		data, err := encodeVertex(v)
		if err != nil {
			return err
		}
		return txn.Set(vertexKey(vid), data)
	})
}

// DeleteVertex removes a vertex, its index entries and all incident edges.
func (b *BadgerEngine) DeleteVertex(ctx context.Context, id any) (int, error) {
	vid, err := idString(id)
	if err != nil {
		return 0, err
	}
	if err := b.checkOpen(ctx); err != nil {
		return 0, err
	}

	removed := 0
	err = b.update(func(txn *badger.Txn) error {
		removed = 0
		v, err := getVertex(txn, vid)
		if err != nil {
			return err
		}

		var edgeIDs []string
		for _, prefix := range [][]byte{adjacencyPrefix(prefixOutgoingIndex, vid), adjacencyPrefix(prefixIncomingIndex, vid)} {
			p := prefix
			err := iteratePrefix(txn, p, func(item *badger.Item) error {
				edgeIDs = append(edgeIDs, string(item.Key()[len(p):]))
				return nil
			})
			if err != nil {
				return err
			}
		}

		seen := make(map[string]struct{}, len(edgeIDs))
		for _, edgeID := range edgeIDs {
			if _, dup := seen[edgeID]; dup {
				continue
			}
			seen[edgeID] = struct{}{}
			if err := deleteEdge(txn, edgeID); err != nil {
				return err
			}
			removed++
		}

		if err := b.releaseUnique(txn, v.Label, v.Props, vid); err != nil {
			return err
		}
		if err := txn.Delete(labelIndexKey(v.Label, vid)); err != nil {
			return err
		}
		return txn.Delete(vertexKey(vid))
	})
	return removed, err
}

// CreateEdge adds a directed edge between two existing vertices.
func (b *BadgerEngine) CreateEdge(ctx context.Context, label string, from, to any) (any, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty edge label", ErrInvalidData)
	}
	src, err := idString(from)
	if err != nil {
		return nil, err
	}
	dst, err := idString(to)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(ctx); err != nil {
		return nil, err
	}

	seq, err := b.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("allocating sequence: %w", err)
	}
	e := &edgeRecord{ID: uuid.NewString(), Label: label, From: src, To: dst, Seq: seq}

	err = b.update(func(txn *badger.Txn) error {
		if _, err := getVertex(txn, src); err != nil {
			return fmt.Errorf("source vertex %s: %w", src, err)
		}
		if _, err := getVertex(txn, dst); err != nil {
			return fmt.Errorf("target vertex %s: %w", dst, err)
		}
		data, err := encodeEdge(e)
		if err != nil {
			return err
		}
		if err := txn.Set(edgeKey(e.ID), data); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoingIndex, src, e.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(adjacencyKey(prefixIncomingIndex, dst, e.ID), []byte{})
	})
	if err != nil {
		return nil, err
	}
	return e.ID, nil
}

// CountEdges counts edges with label from -> to.
func (b *BadgerEngine) CountEdges(ctx context.Context, label string, from, to any) (int, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, err
	}
	var n int
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := matchingEdges(txn, label, from, to)
		n = len(ids)
		return err
	})
	return n, err
}

// DeleteEdges removes edges with label from -> to.
func (b *BadgerEngine) DeleteEdges(ctx context.Context, label string, from, to any) (int, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, err
	}
	var n int
	err := b.update(func(txn *badger.Txn) error {
		ids, err := matchingEdges(txn, label, from, to)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteEdge(txn, id); err != nil {
				return err
			}
		}
		n = len(ids)
		return nil
	})
	return n, err
}

// Neighbors lists incident edges in one direction, in creation order.
func (b *BadgerEngine) Neighbors(ctx context.Context, id any, dir Direction) ([]Neighbor, error) {
	vid, err := idString(id)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(ctx); err != nil {
		return nil, err
	}

	type hit struct {
		edge *edgeRecord
		far  *vertexRecord
	}
	var hits []hit

	err = b.db.View(func(txn *badger.Txn) error {
		if _, err := getVertex(txn, vid); err != nil {
			return err
		}
		indexPrefix := prefixOutgoingIndex
		if dir == Incoming {
			indexPrefix = prefixIncomingIndex
		}
		prefix := adjacencyPrefix(indexPrefix, vid)
		return iteratePrefix(txn, prefix, func(item *badger.Item) error {
			e, err := getEdge(txn, string(item.Key()[len(prefix):]))
			if err != nil {
				return err
			}
			farID := e.To
			if dir == Incoming {
				farID = e.From
			}
			far, err := getVertex(txn, farID)
			if err != nil {
				return err
			}
			hits = append(hits, hit{edge: e, far: far})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].edge.Seq < hits[j].edge.Seq })
	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{EdgeID: h.edge.ID, EdgeLabel: h.edge.Label, Vertex: h.far.propertyMap()}
	}
	return out, nil
}

// Close releases the sequence and closes the database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := b.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *BadgerEngine) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when another writer
// committed a conflicting change first.
func (b *BadgerEngine) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// claimUnique writes unique-index keys for props, failing if another vertex
// owns one of them. Reading the key inside the transaction makes a concurrent
// claim of the same value a commit conflict.
func (b *BadgerEngine) claimUnique(txn *badger.Txn, label string, props map[string]any, vid string) error {
	for _, p := range b.unique.Properties(label) {
		v, ok := props[p]
		if !ok {
			continue
		}
		key := uniqueIndexKey(label, p, v)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(owner) != vid {
				return fmt.Errorf("%w: %s with %s = %v", ErrAlreadyExists, label, p, v)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		if err := txn.Set(key, []byte(vid)); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerEngine) releaseUnique(txn *badger.Txn, label string, props map[string]any, vid string) error {
	for _, p := range b.unique.Properties(label) {
		v, ok := props[p]
		if !ok {
			continue
		}
		key := uniqueIndexKey(label, p, v)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		owner, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(owner) == vid {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func getVertex(txn *badger.Txn, vid string) (*vertexRecord, error) {
	item, err := txn.Get(vertexKey(vid))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v *vertexRecord
	err = item.Value(func(val []byte) error {
		var err error
		v, err = decodeVertex(val)
		return err
	})
	return v, err
}

func getEdge(txn *badger.Txn, edgeID string) (*edgeRecord, error) {
	item, err := txn.Get(edgeKey(edgeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e *edgeRecord
	err = item.Value(func(val []byte) error {
		var err error
		e, err = decodeEdge(val)
		return err
	})
	return e, err
}

func deleteEdge(txn *badger.Txn, edgeID string) error {
	e, err := getEdge(txn, edgeID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixOutgoingIndex, e.From, edgeID)); err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixIncomingIndex, e.To, edgeID)); err != nil {
		return err
	}
	return txn.Delete(edgeKey(edgeID))
}

func matchingEdges(txn *badger.Txn, label string, from, to any) ([]string, error) {
	src, err := idString(from)
	if err != nil {
		return nil, err
	}
	dst, err := idString(to)
	if err != nil {
		return nil, err
	}

	var ids []string
	prefix := adjacencyPrefix(prefixOutgoingIndex, src)
	err = iteratePrefix(txn, prefix, func(item *badger.Item) error {
		e, err := getEdge(txn, string(item.Key()[len(prefix):]))
		if err != nil {
			return err
		}
		if e.Label == label && e.To == dst {
			ids = append(ids, e.ID)
		}
		return nil
	})
	return ids, err
}

// iteratePrefix walks every key under prefix. Keys are collected before fn
// runs so fn may issue further reads and writes on txn.
func iteratePrefix(txn *badger.Txn, prefix []byte, fn func(item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func vertexKey(id string) []byte {
	return append([]byte{prefixVertex}, id...)
}

func edgeKey(id string) []byte {
	return append([]byte{prefixEdge}, id...)
}

func labelIndexPrefix(label string) []byte {
	return joinKey(prefixLabelIndex, label, "")
}

func labelIndexKey(label, vid string) []byte {
	return joinKey(prefixLabelIndex, label, vid)
}

func adjacencyPrefix(prefix byte, vid string) []byte {
	return joinKey(prefix, vid, "")
}

func adjacencyKey(prefix byte, vid, edgeID string) []byte {
	return joinKey(prefix, vid, edgeID)
}

func uniqueIndexKey(label, property string, value any) []byte {
	return joinKey(prefixUniqueIndex, label+"\x00"+property, valueKey(value))
}

func joinKey(prefix byte, head, tail string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(head) + len(tail) + 2)
	buf.WriteByte(prefix)
	buf.WriteString(head)
	buf.WriteByte(0x00)
	buf.WriteString(tail)
	return buf.Bytes()
}

var _ Engine = (*BadgerEngine)(nil)
