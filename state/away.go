package state

import "sync"

const MaxAwayMessages = 1000

// AwayMessage is a message received while away, with the channel it was
// stored in.
type AwayMessage struct {
	Message
	Channel string
}

// AwayBuffer keeps messages received while away. Once full, new messages are
// dropped and the earliest ones are kept.
type AwayBuffer struct {
	mu       sync.RWMutex
	messages []AwayMessage
}

func NewAwayBuffer() *AwayBuffer {
	return &AwayBuffer{}
}

// Add appends msg. It reports false when the buffer is full and msg was
// dropped.
func (b *AwayBuffer) Add(msg AwayMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) >= MaxAwayMessages {
		return false
	}
	b.messages = append(b.messages, msg)
	return true
}

func (b *AwayBuffer) Messages() []AwayMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]AwayMessage(nil), b.messages...)
}

func (b *AwayBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

func (b *AwayBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}
