package state

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type MonitoredUser struct {
	Nick       string
	Online     bool
	UserString string // nick!ident@host, only while online
	LastUpdate time.Time
}

// Monitor tracks the presence of watched nicks. Nicks are compared
// case-insensitively.
type Monitor struct {
	mu    sync.RWMutex
	users map[string]*MonitoredUser
	now   func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		users: map[string]*MonitoredUser{},
		now:   time.Now,
	}
}

func monitorKey(nick string) string {
	return strings.ToLower(nick)
}

// Add watches nick. It is a no-op if nick is already watched.
func (m *Monitor) Add(nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := monitorKey(nick)
	if _, ok := m.users[key]; ok {
		return false
	}
	m.users[key] = &MonitoredUser{Nick: nick, LastUpdate: m.now()}
	return true
}

func (m *Monitor) Remove(nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := monitorKey(nick)
	if _, ok := m.users[key]; !ok {
		return false
	}
	delete(m.users, key)
	return true
}

func (m *Monitor) IsMonitored(nick string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[monitorKey(nick)]
	return ok
}

func (m *Monitor) IsOnline(nick string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[monitorKey(nick)]
	return ok && u.Online
}

func (m *Monitor) setLocked(nick, userString string, online, create bool) bool {
	key := monitorKey(nick)
	u, ok := m.users[key]
	if !ok {
		if !create {
			return false
		}
		u = &MonitoredUser{Nick: nick}
		m.users[key] = u
	}
	u.Online = online
	if online {
		u.UserString = userString
	} else {
		u.UserString = ""
	}
	u.LastUpdate = m.now()
	return true
}

// SetOnline marks a watched nick online. Unknown nicks are ignored.
func (m *Monitor) SetOnline(nick, userString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(nick, userString, true, false)
}

// SetOffline marks a watched nick offline. Unknown nicks are ignored.
func (m *Monitor) SetOffline(nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(nick, "", false, false)
}

// OnlineUser is an entry of a RPL_MONONLINE batch.
type OnlineUser struct {
	Nick       string
	UserString string
}

// SetOnlineBatch marks users online, watching the ones not known yet.
func (m *Monitor) SetOnlineBatch(users []OnlineUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		m.setLocked(u.Nick, u.UserString, true, true)
	}
}

// SetOfflineBatch marks nicks offline, watching the ones not known yet.
func (m *Monitor) SetOfflineBatch(nicks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, nick := range nicks {
		m.setLocked(nick, "", false, true)
	}
}

func (m *Monitor) Get(nick string) (MonitoredUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[monitorKey(nick)]
	if !ok {
		return MonitoredUser{}, false
	}
	return *u, true
}

// List returns every watched user, sorted by nick.
func (m *Monitor) List() []MonitoredUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]MonitoredUser, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		return monitorKey(users[i].Nick) < monitorKey(users[j].Nick)
	})
	return users
}

func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = map[string]*MonitoredUser{}
}
