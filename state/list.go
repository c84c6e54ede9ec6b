package state

import "sync"

const (
	MaxListEntries = 10000
	// MinListEntries is the smallest result kept by Finish. Servers answer
	// LIST with a handful of entries when they refuse to list everything.
	MinListEntries = 10
	// HiddenChannel is the name servers give to channels they hide.
	HiddenChannel = "*"
)

type ListEntry struct {
	Name  string
	Users int
	Topic string
}

// ChannelList aggregates RPL_LIST replies.
type ChannelList struct {
	mu       sync.RWMutex
	entries  []ListEntry
	names    map[string]struct{}
	finished bool
}

func NewChannelList() *ChannelList {
	return &ChannelList{names: map[string]struct{}{}}
}

// Add appends an entry. It reports false when the entry was rejected: hidden
// channel, duplicate name or full list.
func (l *ChannelList) Add(name string, users int, topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == HiddenChannel || len(l.entries) >= MaxListEntries {
		return false
	}
	if _, ok := l.names[name]; ok {
		return false
	}
	if users < 0 {
		users = 0
	}
	l.names[name] = struct{}{}
	l.entries = append(l.entries, ListEntry{Name: name, Users: users, Topic: topic})
	return true
}

// Finish marks the list as complete. Lists shorter than MinListEntries are
// discarded.
func (l *ChannelList) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) < MinListEntries {
		l.entries = nil
		l.names = map[string]struct{}{}
	}
	l.finished = true
}

func (l *ChannelList) Finished() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finished
}

func (l *ChannelList) Entries() []ListEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ListEntry(nil), l.entries...)
}

func (l *ChannelList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear drops the entries. The finished flag is left as is.
func (l *ChannelList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.names = map[string]struct{}{}
}

// Reset prepares the list for a new LIST request.
func (l *ChannelList) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.names = map[string]struct{}{}
	l.finished = false
}
