package editor

import (
	"bytes"
	"fmt"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

// Update sets Key to Value. Value is a gguf.Value, a Text, or a value
// decoded from JSON or YAML; see Resolve.
type Update struct {
	Key   string
	Value any
}

// Mode is how a plan reaches the disk.
type Mode int

const (
	// ModeNone means the encoded file would not change.
	ModeNone Mode = iota
	// ModeInPlace overwrites the metadata and descriptor bytes of the
	// existing file. The header, the data offset and the tensor data stay
	// where they are.
	ModeInPlace
	// ModeRewrite streams a complete new file and renames it over the old.
	ModeRewrite
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInPlace:
		return "in-place"
	case ModeRewrite:
		return "rewrite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText lets plans serialise the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Plan describes the pending state of a session against the file as it was
// opened.
type Plan struct {
	Mode     Mode          `json:"mode"`
	Changes  []gguf.Change `json:"-"`
	Inserted int           `json:"inserted"`

	OldMetadataSize uint64 `json:"old_metadata_size"`
	NewMetadataSize uint64 `json:"new_metadata_size"`
	OldDataOffset   uint64 `json:"old_data_offset"`
	NewDataOffset   uint64 `json:"new_data_offset"`
	// Delta is the shift applied to every tensor's file offset.
	Delta int64 `json:"delta"`
	// OldSize and NewSize are file sizes.
	OldSize uint64 `json:"old_size"`
	NewSize uint64 `json:"new_size"`
}

// applyUpdates applies updates in order to a copy of base's metadata and
// returns the relaid-out document. The batch fails as a whole on the first
// bad update; base is never modified.
func applyUpdates(base *gguf.File, updates []Update, noInsert bool) (*gguf.File, []gguf.Change, error) {
	md := base.Metadata.Clone()
	changes := make([]gguf.Change, 0, len(updates))
	for i, u := range updates {
		if u.Key == "" {
			return nil, nil, invalidUpdatef("update %d: empty key", i)
		}
		v, err := Resolve(u.Key, u.Value, md)
		if err != nil {
			return nil, nil, err
		}
		c, err := md.Set(u.Key, v, !noInsert)
		if err != nil {
			return nil, nil, err
		}
		changes = append(changes, c)
	}

	next, _ := base.WithMetadata(md)
	if err := gguf.Validate(next); err != nil {
		return nil, nil, err
	}
	return next, changes, nil
}

// plan compares the current document against the one that was opened.
func plan(orig, cur *gguf.File, changes []gguf.Change, forceRewrite bool) *Plan {
	p := &Plan{
		Changes:         changes,
		OldMetadataSize: orig.MetadataSize,
		NewMetadataSize: cur.MetadataSize,
		OldDataOffset:   orig.DataOffset,
		NewDataOffset:   cur.DataOffset,
		Delta:           int64(cur.DataOffset) - int64(orig.DataOffset),
		OldSize:         orig.Size,
		NewSize:         cur.DataOffset + cur.DataSize,
	}
	for _, c := range changes {
		if c.Inserted {
			p.Inserted++
		}
	}
	p.Mode = decideMode(orig, cur, forceRewrite)
	return p
}

// decideMode picks the cheapest safe write. In place is only possible when
// the header and every byte from the data offset on stay put.
func decideMode(orig, cur *gguf.File, forceRewrite bool) Mode {
	if cur.Header == orig.Header && cur.Layout == orig.Layout &&
		bytes.Equal(cur.AppendMetadata(nil), orig.AppendMetadata(nil)) {
		return ModeNone
	}
	if forceRewrite {
		return ModeRewrite
	}
	if cur.Header == orig.Header && cur.DataOffset == orig.DataOffset {
		return ModeInPlace
	}
	return ModeRewrite
}
