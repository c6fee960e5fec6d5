package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBDocument is a schemaless document as persisted in its collection bucket.
type DBDocument struct {
	ID            string         `msgpack:"id"`
	Fields        map[string]any `msgpack:"fields"`
	CreateVersion uint64         `msgpack:"createVersion"`
	UpdateVersion uint64         `msgpack:"updateVersion"`
	UpdateTime    int64          `msgpack:"updateTime"` // Unix milliseconds
}

func (d *DBDocument) Key() []byte {
	return []byte(d.ID)
}

func (d *DBDocument) MarshalBinary() (data []byte, err error) {
	type alias DBDocument
	return msgpack.Marshal((*alias)(d))
}

func (d *DBDocument) UnmarshalBinary(data []byte) error {
	type alias DBDocument
	return msgpack.Unmarshal(data, (*alias)(d))
}

// DBMeta holds the store-wide commit counters.
type DBMeta struct {
	Version       uint64 `msgpack:"version"`
	LastTimestamp int64  `msgpack:"lastTimestamp"` // Unix milliseconds
}

func (m *DBMeta) Key() []byte {
	return metaKey
}

func (m *DBMeta) MarshalBinary() (data []byte, err error) {
	type alias DBMeta
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMeta) UnmarshalBinary(data []byte) error {
	type alias DBMeta
	return msgpack.Unmarshal(data, (*alias)(m))
}
