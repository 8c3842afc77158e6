package breaker

import "sync"

// MemoryQueue is the in-process Queue used when no state file is
// configured.
type MemoryQueue struct {
	mu     sync.Mutex
	tokens []Token
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Pop() (Token, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tokens) == 0 {
		return Off, false, nil
	}
	tok := q.tokens[0]
	q.tokens = q.tokens[1:]
	return tok, true, nil
}

func (q *MemoryQueue) Push(tokens ...Token) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tokens = append(q.tokens, tokens...)
	return nil
}

func (q *MemoryQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tokens), nil
}
