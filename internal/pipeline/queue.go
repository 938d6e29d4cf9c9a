package pipeline

// Queue is an unbounded multi-producer/single-consumer FIFO. Producers never
// block on a slow consumer; a goroutine pumps messages through an in-memory
// backlog between the two channel ends.
type Queue struct {
	in  chan Message
	out chan Message
}

// NewQueue starts the pump goroutine and returns the queue.
func NewQueue() *Queue {
	q := &Queue{
		in:  make(chan Message),
		out: make(chan Message),
	}
	go q.pump()
	return q
}

// Push enqueues a message. Safe for concurrent use. Must not be called after
// Close.
func (q *Queue) Push(msg Message) {
	q.in <- msg
}

// C returns the consumer end. It is closed once Close has been called and the
// backlog is drained.
func (q *Queue) C() <-chan Message {
	return q.out
}

// Close stops accepting messages. Queued messages are still delivered.
func (q *Queue) Close() {
	close(q.in)
}

func (q *Queue) pump() {
	var backlog []Message
	in := q.in

	for {
		if in == nil && len(backlog) == 0 {
			close(q.out)
			return
		}

		var out chan Message
		var next Message
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}

		select {
		case msg, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, msg)
		case out <- next:
			backlog[0] = nil
			backlog = backlog[1:]
			if len(backlog) == 0 {
				backlog = nil
			}
		}
	}
}
