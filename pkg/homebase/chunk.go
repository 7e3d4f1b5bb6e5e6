package homebase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTotalChunks is returned when a chunk envelope declares a
// totalChunks outside [1, 2000].
var ErrInvalidTotalChunks = errors.New("homebase: totalChunks out of range")

const maxTotalChunks = 2000

// chunkBuffer accumulates a chunked message's slots until every index is
// present, then reassembles the concatenated payload. Owned exclusively by
// a Link's run loop; not safe for concurrent use.
type chunkBuffer struct {
	totalChunks int
	slots       []*string
	filled      int
}

func newChunkBuffer(totalChunks int) (*chunkBuffer, error) {
	if totalChunks < 1 || totalChunks > maxTotalChunks {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTotalChunks, totalChunks)
	}

	return &chunkBuffer{
		totalChunks: totalChunks,
		slots:       make([]*string, totalChunks),
	}, nil
}

// add records chunkIndex's data, ignoring duplicate indices. Returns true
// once every slot has been filled.
func (c *chunkBuffer) add(chunkIndex int, data string) (complete bool, err error) {
	if chunkIndex < 0 || chunkIndex >= c.totalChunks {
		return false, fmt.Errorf("homebase: chunk index %d out of range [0,%d)", chunkIndex, c.totalChunks)
	}

	if c.slots[chunkIndex] == nil {
		c.slots[chunkIndex] = &data
		c.filled++
	}

	return c.filled == c.totalChunks, nil
}

// assemble concatenates the slots in index order. Callers must only call
// this once add reports complete.
func (c *chunkBuffer) assemble() string {
	var sb strings.Builder

	for _, slot := range c.slots {
		if slot != nil {
			sb.WriteString(*slot)
		}
	}

	return sb.String()
}

// chunkRegistry holds chunkBuffers keyed by messageId for a single Link.
type chunkRegistry struct {
	buffers map[string]*chunkBuffer
}

func newChunkRegistry() *chunkRegistry {
	return &chunkRegistry{buffers: make(map[string]*chunkBuffer)}
}

// apply feeds one chunk envelope into its message's buffer, creating it on
// the first chunk seen. Returns the reassembled payload once complete, and
// removes the buffer either on completion or on a validation failure.
func (r *chunkRegistry) apply(messageID string, chunkIndex, totalChunks int, data string) (assembled string, complete bool, err error) {
	buf, ok := r.buffers[messageID]
	if !ok {
		buf, err = newChunkBuffer(totalChunks)
		if err != nil {
			return "", false, err
		}

		r.buffers[messageID] = buf
	}

	done, err := buf.add(chunkIndex, data)
	if err != nil {
		delete(r.buffers, messageID)
		return "", false, err
	}

	if !done {
		return "", false, nil
	}

	delete(r.buffers, messageID)

	return buf.assemble(), true, nil
}

// reset discards every in-flight chunk buffer, called on link teardown.
func (r *chunkRegistry) reset() {
	r.buffers = make(map[string]*chunkBuffer)
}
