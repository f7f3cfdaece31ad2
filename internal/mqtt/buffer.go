package mqtt

import (
	"github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/sirupsen/logrus"
)

// bufferCapacity is how many messages are kept while disconnected.
const bufferCapacity = 100

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest capacity messages, oldest first. The caller
// synchronizes.
type ringBuffer struct {
	q        *circularbuffer.Queue
	capacity int
	dropped  int // since the last drain
	log      logrus.FieldLogger
}

func newRingBuffer(capacity int, log logrus.FieldLogger) *ringBuffer {
	return &ringBuffer{q: circularbuffer.New(capacity), capacity: capacity, log: log}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.q.Full() {
		r.q.Dequeue()
		if r.dropped == 0 {
			r.log.WithField("capacity", r.capacity).Warn("offline buffer full, dropping oldest")
		}
		r.dropped++
	}
	r.q.Enqueue(msg)
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.q.Empty() {
		return nil
	}
	out := make([]bufferedMsg, 0, r.q.Size())
	for {
		v, ok := r.q.Dequeue()
		if !ok {
			break
		}
		out = append(out, v.(bufferedMsg))
	}
	r.dropped = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.q.Size()
}
