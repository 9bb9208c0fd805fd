package lob

import (
	"io"

	"lob/streamid"
	"lob/varint"
)

// Stream presents a stream id as a sequential, lazily-resolved byte source
// (spec.md §4.6). It implements io.Reader and io.ByteReader; Skip and
// Close round out the contract. A Stream is single-owner: it is not safe
// to share between concurrent readers.
type Stream struct {
	store *Store

	// stack holds one cursor per currently-open indirection level: the
	// bottom is the outermost id, each entry above it a nested id spliced
	// in when an Indirect record is resolved. This is the "prepend nested
	// bytes ahead of the remaining outer bytes" splice from spec.md §4.6,
	// expressed as an explicit stack rather than a literal byte splice.
	stack []*varint.Cursor

	sub    []byte // current sub-buffer: an inline slice view or a fetched block
	subPos int

	skip   uint64 // bytes requested to skip but not yet consumed by advance
	pos    uint64
	length uint64

	closed bool
}

// GetInputStream opens id for sequential reading.
func (s *Store) GetInputStream(id []byte) (*Stream, error) {
	length, err := streamid.Length(id)
	if err != nil {
		return nil, err
	}
	return &Stream{
		store:  s,
		stack:  []*varint.Cursor{varint.NewCursor(id)},
		length: length,
	}, nil
}

// Length returns the stream's total payload length.
func (st *Stream) Length() uint64 { return st.length }

// advance walks the id cursor (recursing through indirect records) until it
// finds a sub-buffer to serve reads from, reports that it set one (true),
// or reports that the id is exhausted (false).
func (st *Stream) advance() (bool, error) {
	for {
		if len(st.stack) == 0 {
			return false, nil
		}
		top := st.stack[len(st.stack)-1]
		w := streamid.NewWalkerAt(top)
		rec, ok, err := w.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			st.stack = st.stack[:len(st.stack)-1]
			continue
		}

		switch rec.Tag {
		case streamid.TagInline:
			ln := rec.Len
			if st.skip >= ln {
				st.skip -= ln
				continue
			}
			st.sub = rec.Inline[st.skip:]
			st.subPos = 0
			st.skip = 0
			return true, nil

		case streamid.TagBlockRef:
			ln := rec.Len
			if st.skip >= ln {
				st.skip -= ln
				continue
			}
			data, gerr := st.store.bm.Get(rec.Key)
			if gerr != nil {
				return false, ioError(gerr, "lob: fetch block")
			}
			st.sub = data[st.skip:]
			st.subPos = 0
			st.skip = 0
			return true, nil

		case streamid.TagIndirect:
			ln := rec.TotalLen
			if st.skip >= ln {
				st.skip -= ln
				continue
			}
			nested, gerr := st.store.bm.Get(rec.Key)
			if gerr != nil {
				return false, ioError(gerr, "lob: fetch indirect block")
			}
			st.stack = append(st.stack, varint.NewCursor(nested))
			continue

		default:
			return false, streamid.ErrMalformedID
		}
	}
}

// Read implements io.Reader. It never materializes more of the payload than
// one sub-buffer at a time, so partial reads over an id with deep
// indirection stay bounded by max_block_size rather than the full payload.
func (st *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if st.closed {
		return 0, io.EOF
	}
	for st.subPos >= len(st.sub) {
		ok, err := st.advance()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
	}
	n := copy(p, st.sub[st.subPos:])
	st.subPos += n
	st.pos += uint64(n)
	return n, nil
}

// ReadByte implements io.ByteReader.
func (st *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := st.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// Skip advances the stream by up to n bytes, clamped to the remaining
// payload, and returns the number of bytes actually skipped. Skip(0)
// (or a non-positive n) returns 0 unconditionally.
func (st *Stream) Skip(n int64) (int64, error) {
	if n <= 0 || st.closed {
		return 0, nil
	}
	remaining := st.length - st.pos
	toSkip := uint64(n)
	if toSkip > remaining {
		toSkip = remaining
	}
	if toSkip == 0 {
		return 0, nil
	}

	fromSub := uint64(len(st.sub) - st.subPos)
	if fromSub > toSkip {
		fromSub = toSkip
	}
	st.subPos += int(fromSub)
	st.pos += fromSub

	rest := toSkip - fromSub
	if rest == 0 {
		return int64(toSkip), nil
	}

	st.skip += rest
	st.sub = nil
	st.subPos = 0
	for st.skip > 0 {
		ok, err := st.advance()
		if err != nil {
			return int64(toSkip - st.skip), err
		}
		if !ok {
			break
		}
	}
	st.pos += rest
	return int64(toSkip), nil
}

// Close releases the stream's in-memory state. Subsequent reads return
// io.EOF. The stream holds no external resource beyond the block map
// itself, so there is nothing else to release.
func (st *Stream) Close() error {
	st.stack = nil
	st.sub = nil
	st.subPos = 0
	st.skip = 0
	st.pos = st.length
	st.closed = true
	return nil
}
