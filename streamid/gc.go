package streamid

import "lob/blockmap"

// MaxBlockKey returns the maximum block-map key reachable from id, or -1 if
// id references no blocks at all. It recurses into indirect records' nested
// ids (fetched from bm) so that the result reflects every key transitively
// reachable from id, which is what orphan reclamation needs: any key above
// this value cannot belong to id.
func MaxBlockKey(id []byte, bm blockmap.Map) (int64, error) {
	w := NewWalker(id)
	max := int64(-1)
	for {
		rec, ok, err := w.Next()
		if err != nil {
			return -1, err
		}
		if !ok {
			return max, nil
		}
		switch rec.Tag {
		case TagBlockRef:
			if int64(rec.Key) > max {
				max = int64(rec.Key)
			}
		case TagIndirect:
			if int64(rec.Key) > max {
				max = int64(rec.Key)
			}
			nested, err := bm.Get(rec.Key)
			if err != nil {
				return -1, err
			}
			nestedMax, err := MaxBlockKey(nested, bm)
			if err != nil {
				return -1, err
			}
			if nestedMax > max {
				max = nestedMax
			}
		}
	}
}

// Remove deletes every block reachable from id. Indirect records recurse
// into the nested id first, then remove the indirect block itself, so a
// failure partway through still leaves the remaining structure internally
// consistent (the not-yet-removed blocks are still fully reachable from the
// blocks already processed, were id still being walked from the top).
func Remove(id []byte, bm blockmap.Map) error {
	w := NewWalker(id)
	for {
		rec, ok, err := w.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch rec.Tag {
		case TagBlockRef:
			if err := bm.Remove(rec.Key); err != nil {
				return err
			}
		case TagIndirect:
			nested, err := bm.Get(rec.Key)
			if err != nil {
				return err
			}
			if err := Remove(nested, bm); err != nil {
				return err
			}
			if err := bm.Remove(rec.Key); err != nil {
				return err
			}
		}
	}
}
