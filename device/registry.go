package device

import "sync"

// Entry is a hardware decoder device published for other consumers, such as
// the decoder that produces the surfaces a driver maps.
type Entry struct {
	Driver  string
	API     string
	Context Context
}

// Token identifies an entry added to a [Registry]. The zero Token refers to
// nothing.
type Token struct {
	id uint64
}

// Valid reports whether t was returned by a Registry.
func (t Token) Valid() bool { return t.id != 0 }

// Registry is the process-wide list of hardware decoder devices.
type Registry interface {
	// Add publishes e and returns a token for removing it again.
	Add(e Entry) Token
	// Remove withdraws the entry for t. Unknown tokens are ignored.
	Remove(t Token)
}

// DeviceList is a Registry safe for concurrent use by independent drivers.
type DeviceList struct {
	mu      sync.Mutex
	next    uint64
	ids     []uint64
	entries map[uint64]Entry
}

var defaultList = NewDeviceList()

// Default returns the process-wide device list.
func Default() *DeviceList { return defaultList }

// NewDeviceList creates an empty device list.
func NewDeviceList() *DeviceList {
	return &DeviceList{entries: make(map[uint64]Entry)}
}

// Add publishes e.
func (l *DeviceList) Add(e Entry) Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.ids = append(l.ids, l.next)
	l.entries[l.next] = e
	return Token{id: l.next}
}

// Remove withdraws the entry for t.
func (l *DeviceList) Remove(t Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[t.id]; !ok {
		return
	}
	delete(l.entries, t.id)
	for i, id := range l.ids {
		if id == t.id {
			l.ids = append(l.ids[:i], l.ids[i+1:]...)
			break
		}
	}
}

// Lookup returns the earliest added entry for api.
func (l *DeviceList) Lookup(api string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.ids {
		if e := l.entries[id]; e.API == api {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of published entries.
func (l *DeviceList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
