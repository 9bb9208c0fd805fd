package lob

import (
	"io"
	"log"

	"lob/streamid"
)

// Put consumes in (without closing it) and returns a freshly constructed
// stream id. On I/O failure every block already appended to the map for
// this id is removed, best-effort, before the error surfaces (spec.md
// §4.5/§7).
func (s *Store) Put(in io.Reader) (id []byte, err error) {
	pw := &putWriter{store: s, in: in}
	defer func() {
		if err != nil {
			pw.rollback()
		}
	}()

	minSize, maxSize := s.GetMinBlockSize(), s.GetMaxBlockSize()

	b := streamid.NewBuilder()
	level := 0
	for {
		eof, perr := pw.putLevel(b, level, minSize, maxSize)
		if perr != nil {
			return nil, perr
		}
		if eof {
			break
		}
		if b.Len() > maxSize/2 {
			if cerr := pw.collapse(b); cerr != nil {
				return nil, cerr
			}
			level++
		}
	}
	if b.Len() > 2*minSize {
		if cerr := pw.collapse(b); cerr != nil {
			return nil, cerr
		}
	}
	return append([]byte(nil), b.Bytes()...), nil
}

// putWriter carries the state of one in-progress Put call: its input and
// which blocks it has appended so far (for rollback). The reusable chunk
// buffer read at level 0 lives in the Store's single-slot cache instead.
type putWriter struct {
	store    *Store
	in       io.Reader
	appended []uint64
}

// rollback removes every block appended during this Put call, most
// recent first, logging (not failing on) a removal that itself errors.
func (pw *putWriter) rollback() {
	for i := len(pw.appended) - 1; i >= 0; i-- {
		if rerr := pw.store.bm.Remove(pw.appended[i]); rerr != nil {
			log.Printf("lob: rollback failed to remove block %d: %v", pw.appended[i], rerr)
		}
	}
}

// collapse stores b's current bytes as a block and replaces b with a single
// indirect record pointing at the new key.
func (pw *putWriter) collapse(b *streamid.Builder) error {
	prevLen, err := streamid.Length(b.Bytes())
	if err != nil {
		return err
	}
	key, err := pw.store.bm.Append(append([]byte(nil), b.Bytes()...))
	if err != nil {
		return ioError(err, "lob: append collapsed id block")
	}
	pw.appended = append(pw.appended, key)
	b.Reset()
	b.AppendIndirect(prevLen, key)
	return nil
}

// putLevel implements the recursive put_level algorithm of spec.md §4.5.
// At level 0 it reads one chunk from the input and emits an inline or
// block-ref record; at level > 0 it builds a nested id by looping over
// putLevel(level-1), collapsing that nested id into an indirect record as
// soon as it grows past half the max block size.
func (pw *putWriter) putLevel(b *streamid.Builder, level int, minSize, maxSize int) (eof bool, err error) {
	if level > 0 {
		id2 := streamid.NewBuilder()
		for {
			innerEOF, ierr := pw.putLevel(id2, level-1, minSize, maxSize)
			if ierr != nil {
				return false, ierr
			}
			if id2.Len() > maxSize/2 {
				if cerr := pw.collapse(id2); cerr != nil {
					return false, cerr
				}
				b.AppendID(id2.Bytes())
				return innerEOF, nil
			}
			if innerEOF {
				b.AppendID(id2.Bytes())
				return true, nil
			}
		}
	}

	buf := pw.store.takeBuffer(maxSize)
	n, rerr := readFullChunk(pw.in, buf)
	if rerr != nil {
		pw.store.offerBuffer(buf)
		return false, ioError(rerr, "lob: read input stream")
	}
	handedOff := n == len(buf)
	if !handedOff {
		pw.store.offerBuffer(buf)
	}
	if n == 0 {
		return true, nil
	}
	if n < minSize {
		b.AppendInline(buf[:n])
	} else {
		key, aerr := pw.store.bm.Append(buf[:n])
		if aerr != nil {
			return false, ioError(aerr, "lob: append block")
		}
		pw.appended = append(pw.appended, key)
		b.AppendBlockRef(n, key)
	}
	return n < maxSize, nil
}

// readFullChunk reads repeatedly from in until buf is filled or
// end-of-stream is observed, returning the number of bytes actually read.
// Reaching EOF is not an error; any other read error is.
func readFullChunk(in io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := in.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}
