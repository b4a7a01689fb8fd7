package ws

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrMalformedFragment marks a chunk whose index falls outside the announced
// range. The in-flight set is left untouched; the frame is dropped.
var ErrMalformedFragment = errors.New("malformed fragment")

type fragmentKey struct {
	Username string
	Kind     string
}

type fragmentSet struct {
	total     int
	slots     []string
	filled    []bool
	remaining int
}

// reassembler accumulates ordered fragments of oversized payloads, one
// in-flight set per (user, kind). Kinds are opaque here: an image chunk and a
// text chunk differ only in their grouping key.
type reassembler struct {
	mu       sync.Mutex
	inflight map[fragmentKey]*fragmentSet
}

func newReassembler() *reassembler {
	return &reassembler{inflight: make(map[fragmentKey]*fragmentSet)}
}

// receiveFragment stores one chunk and reports whether the payload is now
// complete. Duplicate chunks overwrite their slot (idempotent); a fragment
// announcing a different chunkTotal than the in-flight set discards the old
// progress and restarts with the new size. On completion the slots are joined
// in index order and the set is deleted.
func (a *reassembler) receiveFragment(username, kind string, chunkIndex, chunkTotal int, chunkPayload string) (string, bool, error) {
	if chunkTotal <= 0 || chunkIndex < 0 || chunkIndex >= chunkTotal {
		return "", false, fmt.Errorf("%w: index %d of %d", ErrMalformedFragment, chunkIndex, chunkTotal)
	}

	key := fragmentKey{Username: username, Kind: kind}

	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.inflight[key]
	if !ok || set.total != chunkTotal {
		// First fragment, or a conflicting announcement: stream restart.
		set = &fragmentSet{
			total:     chunkTotal,
			slots:     make([]string, chunkTotal),
			filled:    make([]bool, chunkTotal),
			remaining: chunkTotal,
		}
		a.inflight[key] = set
	}

	if !set.filled[chunkIndex] {
		set.filled[chunkIndex] = true
		set.remaining--
	}
	set.slots[chunkIndex] = chunkPayload

	if set.remaining > 0 {
		return "", false, nil
	}

	delete(a.inflight, key)
	return strings.Join(set.slots, ""), true, nil
}
