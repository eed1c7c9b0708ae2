package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// recordsVersion prefixes every encoded record so layouts can evolve.
const recordsVersion byte = 1

var (
	// ErrUnknownRecordVersion indicates an encoded record has an unsupported layout.
	ErrUnknownRecordVersion = errors.New("unknown record version")

	// ErrCorruptRecord indicates an encoded record could not be decoded.
	ErrCorruptRecord = errors.New("corrupt record")
)

// DocumentMUS serializes Document values in MUS format.
var DocumentMUS = documentMUS{}

// TransformCheckpointMUS serializes TransformCheckpoint values in MUS format.
var TransformCheckpointMUS = transformCheckpointMUS{}

type documentMUS struct{}

func (documentMUS) Marshal(v Document, bs []byte) (n int) {
	bs[0] = recordsVersion
	n = 1
	n += ord.String.Marshal(string(v.ItemID), bs[n:])
	n += ord.String.Marshal(v.SourcePath, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Summary, bs[n:])
	n += varint.Int.Marshal(len(v.Tags), bs[n:])
	for _, tag := range v.Tags {
		n += ord.String.Marshal(tag, bs[n:])
	}
	n += ord.String.Marshal(v.Body, bs[n:])
	n += ord.String.Marshal(v.Category, bs[n:])
	n += ord.String.Marshal(string(v.ParentItemID), bs[n:])
	n += varint.Int.Marshal(v.ChunkIndex, bs[n:])
	n += varint.Int.Marshal(v.TotalChunks, bs[n:])
	n += varint.Int64.Marshal(micros(v.CreatedAt), bs[n:])
	n += varint.Int64.Marshal(micros(v.UpdatedAt), bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	r, err := newMusReader(bs)
	if err != nil {
		return
	}
	v.ItemID = FileID(r.string())
	v.SourcePath = r.string()
	v.Title = r.string()
	v.Summary = r.string()
	if count := r.count(); count > 0 {
		v.Tags = make([]string, count)
		for i := range v.Tags {
			v.Tags[i] = r.string()
		}
	}
	v.Body = r.string()
	v.Category = r.string()
	v.ParentItemID = FileID(r.string())
	v.ChunkIndex = r.int()
	v.TotalChunks = r.int()
	v.CreatedAt = fromMicros(r.int64())
	v.UpdatedAt = fromMicros(r.int64())
	return v, r.n, r.err
}

func (documentMUS) Size(v Document) (size int) {
	size = 1
	size += ord.String.Size(string(v.ItemID))
	size += ord.String.Size(v.SourcePath)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Summary)
	size += varint.Int.Size(len(v.Tags))
	for _, tag := range v.Tags {
		size += ord.String.Size(tag)
	}
	size += ord.String.Size(v.Body)
	size += ord.String.Size(v.Category)
	size += ord.String.Size(string(v.ParentItemID))
	size += varint.Int.Size(v.ChunkIndex)
	size += varint.Int.Size(v.TotalChunks)
	size += varint.Int64.Size(micros(v.CreatedAt))
	size += varint.Int64.Size(micros(v.UpdatedAt))
	return
}

type transformCheckpointMUS struct{}

func (transformCheckpointMUS) Marshal(v TransformCheckpoint, bs []byte) (n int) {
	bs[0] = recordsVersion
	n = 1
	n += ord.String.Marshal(string(v.ItemID), bs[n:])
	n += ord.String.Marshal(string(v.Stage), bs[n:])
	n += ord.String.Marshal(v.TransformedContent, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Category, bs[n:])
	n += varint.Int64.Marshal(micros(v.UpdatedAt), bs[n:])
	return
}

func (transformCheckpointMUS) Unmarshal(bs []byte) (v TransformCheckpoint, n int, err error) {
	r, err := newMusReader(bs)
	if err != nil {
		return
	}
	v.ItemID = FileID(r.string())
	v.Stage = StageType(r.string())
	v.TransformedContent = r.string()
	v.Title = r.string()
	v.Category = r.string()
	v.UpdatedAt = fromMicros(r.int64())
	return v, r.n, r.err
}

func (transformCheckpointMUS) Size(v TransformCheckpoint) (size int) {
	size = 1
	size += ord.String.Size(string(v.ItemID))
	size += ord.String.Size(string(v.Stage))
	size += ord.String.Size(v.TransformedContent)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Category)
	size += varint.Int64.Size(micros(v.UpdatedAt))
	return
}

// musReader decodes a sequence of fields and keeps the first error.
type musReader struct {
	bs  []byte
	n   int
	err error
}

func newMusReader(bs []byte) (*musReader, error) {
	if len(bs) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorruptRecord)
	}
	if bs[0] != recordsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecordVersion, bs[0])
	}
	return &musReader{bs: bs, n: 1}, nil
}

func (r *musReader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// count reads a slice length and rejects values the remaining input cannot hold.
func (r *musReader) count() int {
	c := r.int()
	if r.err == nil && (c < 0 || c > len(r.bs)-r.n) {
		r.err = fmt.Errorf("%w: slice length %d", ErrCorruptRecord, c)
		return 0
	}
	return c
}

// micros encodes a timestamp as unix microseconds, with 0 for the zero time.
func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
