package llm

import (
	"context"
	"sync"
)

// Call is one recorded Generate invocation.
type Call struct {
	Messages []Message
	Options  Options
}

// Reply is a scripted Generate result.
type Reply struct {
	Text string
	Err  error
}

// Scripted is a Generator for tests. It returns Replies in order, then
// repeats the last one. With no replies it returns "".
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScripted returns a Scripted generator.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Generate records the call and returns the next reply.
func (s *Scripted) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Messages: append([]Message(nil), messages...), Options: Apply(opts...)})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.Text, r.Err
}

// Calls returns the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
