package gguf

import (
	"bytes"
	"fmt"
)

type Entry struct {
	Key   string
	Value Value
}

// encodedSize is the size of the entry in the metadata section: key, tag
// and payload.
func (e Entry) encodedSize() uint64 {
	n, _ := EncodedSize(e.Value)
	return 8 + uint64(len(e.Key)) + 1 + n
}

// Metadata is the ordered key/value table. Lookups go through an index so
// they stay O(1); iteration follows file order.
type Metadata struct {
	entries []Entry
	index   map[string]int
}

// NewMetadata builds a table from entries in order. Duplicate keys and
// malformed values are rejected.
func NewMetadata(entries ...Entry) (*Metadata, error) {
	md := &Metadata{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := md.add(e); err != nil {
			return nil, err
		}
	}
	return md, nil
}

func checkKey(key string) error {
	if len(key) > MaxKeyLen {
		return &ValueError{Reason: fmt.Sprintf("key of %d bytes exceeds limit of %d", len(key), MaxKeyLen)}
	}
	return nil
}

func (md *Metadata) add(e Entry) error {
	if err := checkKey(e.Key); err != nil {
		return err
	}
	if _, dup := md.index[e.Key]; dup {
		return layoutErrorf("duplicate metadata key %q", e.Key)
	}
	if err := CheckValue(e.Value); err != nil {
		if ve, ok := err.(*ValueError); ok {
			ve.Entity = e.Key
		}
		return err
	}
	md.index[e.Key] = len(md.entries)
	md.entries = append(md.entries, e)
	return nil
}

func (md *Metadata) Len() int {
	if md == nil {
		return 0
	}
	return len(md.entries)
}

// Get looks up key (exact, case-sensitive).
func (md *Metadata) Get(key string) (Value, bool) {
	if md == nil {
		return Value{}, false
	}
	i, ok := md.index[key]
	if !ok {
		return Value{}, false
	}
	return md.entries[i].Value, true
}

// Entries returns the entries in file order. The slice must not be modified.
func (md *Metadata) Entries() []Entry {
	if md == nil {
		return nil
	}
	return md.entries
}

// Clone returns an independent copy of the table. Values are shared; they
// are never mutated in place.
func (md *Metadata) Clone() *Metadata {
	out := &Metadata{
		entries: append([]Entry(nil), md.Entries()...),
		index:   make(map[string]int, md.Len()),
	}
	if md != nil {
		for k, i := range md.index {
			out.index[k] = i
		}
	}
	return out
}

// Change records the effect of one Set call.
type Change struct {
	Key      string
	Old      Value
	New      Value
	Inserted bool
	// OldSize and NewSize are encoded entry sizes; OldSize is 0 for inserts.
	OldSize uint64
	NewSize uint64
	// Unchanged is set when the new encoding is byte-identical to the old.
	Unchanged bool
}

// Resized reports whether the entry's encoded length changed.
func (c Change) Resized() bool {
	return c.OldSize != c.NewSize
}

// Set replaces or inserts key. An existing key keeps its position and must
// keep its exact variant; a missing key is appended when allowInsert is set.
func (md *Metadata) Set(key string, v Value, allowInsert bool) (Change, error) {
	if err := checkKey(key); err != nil {
		return Change{}, err
	}
	if err := CheckValue(v); err != nil {
		if ve, ok := err.(*ValueError); ok {
			ve.Entity = key
		}
		return Change{}, err
	}
	i, ok := md.index[key]
	if !ok {
		if !allowInsert {
			return Change{}, &KeyNotFoundError{Key: key}
		}
		e := Entry{Key: key, Value: v}
		md.index[key] = len(md.entries)
		md.entries = append(md.entries, e)
		return Change{Key: key, New: v, Inserted: true, NewSize: e.encodedSize()}, nil
	}

	old := md.entries[i]
	if !SameVariant(old.Value, v) {
		return Change{}, &TypeMismatchError{Key: key, Expected: old.Value.Variant(), Actual: v.Variant()}
	}
	next := Entry{Key: key, Value: v}
	oldRaw, _ := AppendValue(nil, old.Value)
	newRaw, _ := AppendValue(nil, v)
	md.entries[i] = next
	return Change{
		Key:       key,
		Old:       old.Value,
		New:       v,
		OldSize:   old.encodedSize(),
		NewSize:   next.encodedSize(),
		Unchanged: bytes.Equal(oldRaw, newRaw),
	}, nil
}

// EncodedSize is the size of the whole metadata section.
func (md *Metadata) EncodedSize() uint64 {
	var n uint64
	for _, e := range md.Entries() {
		n += e.encodedSize()
	}
	return n
}

// AppendTo appends the encoded metadata section to dst.
func (md *Metadata) AppendTo(dst []byte) []byte {
	for _, e := range md.Entries() {
		dst = appendString(dst, e.Key)
		dst = append(dst, uint8(e.Value.Type))
		dst = appendPayload(dst, e.Value.Type, e.Value.Value)
	}
	return dst
}

// Alignment returns the tensor-data alignment declared by general.alignment,
// or DefaultAlignment when the key is absent or not an unsigned integer.
func (md *Metadata) Alignment() uint64 {
	if v, ok := GetUint64(md, KeyAlignment); ok {
		return v
	}
	return DefaultAlignment
}

func readMetadata(r *reader, count uint64) (*Metadata, error) {
	if count > uint64(r.remaining())/(8+1) {
		return nil, &ValueError{Offset: r.off, Reason: "metadata count exceeds file size"}
	}
	md := &Metadata{
		entries: make([]Entry, 0, count),
		index:   make(map[string]int, count),
	}
	for i := range count {
		start := r.off
		key, err := r.str(MaxKeyLen)
		if err != nil {
			return nil, decodeErr(err, "", start, "key %d: %v", i, err)
		}
		tagAt := r.off
		tag, err := r.u8()
		if err != nil {
			return nil, decodeErr(err, key, tagAt, "value type: %v", err)
		}
		vtype := ValueType(tag)
		if !vtype.Valid() {
			return nil, &ValueError{Entity: key, Offset: tagAt, Reason: fmt.Sprintf("unknown value type %d", tag)}
		}
		valAt := r.off
		val, err := readValue(r, vtype)
		if err != nil {
			return nil, decodeErr(err, key, valAt, "%s value: %v", vtype, err)
		}
		if err := md.add(Entry{Key: key, Value: Value{Type: vtype, Value: val}}); err != nil {
			if le, ok := err.(*LayoutError); ok {
				le.Offset = uint64(start)
			}
			return nil, err
		}
	}
	return md, nil
}
