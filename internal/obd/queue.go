package obd

import "context"

// Queue admits one Run at a time against a shared Conn.
type Queue struct {
	conn *Conn
	slot chan struct{}
}

func NewQueue(conn *Conn) *Queue {
	return &Queue{
		conn: conn,
		slot: make(chan struct{}, 1),
	}
}

func (q *Queue) Conn() *Conn {
	return q.conn
}

// Run waits for the connection to be free, then runs cmd. Waiting honors
// ctx; the cycle itself does not.
func (q *Queue) Run(ctx context.Context, cmd Command, opts ...RunOption) (Response, error) {
	select {
	case q.slot <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	defer func() { <-q.slot }()
	return q.conn.Run(ctx, cmd, opts...)
}
