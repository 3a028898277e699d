package rndis

import (
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// DefaultMaxResponses is the default limit on responses queued per instance.
const DefaultMaxResponses = 32

// Response is one outbound control message waiting for the transport.
type Response struct {
	buf  []byte
	sent bool
}

// Bytes returns the encoded message. The slice is owned by the response and
// must not be used after the response is freed.
func (r *Response) Bytes() []byte { return r.buf }

// Len returns the message length in bytes.
func (r *Response) Len() int { return len(r.buf) }

// Type returns the message type of the response.
func (r *Response) Type() MessageType {
	if len(r.buf) < 4 {
		return 0
	}
	return MessageType(le32(r.buf, 0))
}

// responseQueue is an ordered list of responses. It is not safe for
// concurrent use; the owning instance serializes access.
type responseQueue struct {
	items []*Response
	limit int
}

// allocate appends a zeroed response of length bytes.
func (q *responseQueue) allocate(length int) (*Response, error) {
	if q.limit > 0 && len(q.items) >= q.limit {
		return nil, fmt.Errorf("%d responses queued: %w", len(q.items), pkg.ErrNoMemory)
	}
	r := &Response{buf: make([]byte, length)}
	q.items = append(q.items, r)
	return r, nil
}

// truncate shrinks r to n bytes.
func (r *Response) truncate(n int) {
	if n < len(r.buf) {
		r.buf = r.buf[:n]
	}
}

// next marks and returns the first response not yet handed out.
func (q *responseQueue) next() (*Response, bool) {
	for _, r := range q.items {
		if !r.sent {
			r.sent = true
			return r, true
		}
	}
	return nil, false
}

// remove deletes r from the queue. It returns false if r is not queued.
func (q *responseQueue) remove(r *Response) bool {
	for i, item := range q.items {
		if item == r {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

// drain empties the queue and returns how many responses it held.
func (q *responseQueue) drain() int {
	n := 0
	for {
		r, ok := q.next()
		if !ok {
			break
		}
		q.remove(r)
		n++
	}
	// Responses handed out but never freed are dropped as well.
	n += len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	return n
}

func (q *responseQueue) len() int { return len(q.items) }
