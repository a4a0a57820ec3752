package backplane

import "sync"

// directory indexes the locally attached connections by id and by user.
// A user may hold several connections at once (tabs, devices); both
// indexes are updated as a unit.
type directory struct {
	mu     sync.RWMutex
	byID   map[string]*tracked
	byUser map[string]map[*tracked]struct{}
}

func newDirectory() *directory {
	return &directory{
		byID:   make(map[string]*tracked),
		byUser: make(map[string]map[*tracked]struct{}),
	}
}

func (d *directory) add(t *tracked) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[t.ID()] = t
	if uid := t.UserID(); uid != "" {
		set, ok := d.byUser[uid]
		if !ok {
			set = make(map[*tracked]struct{})
			d.byUser[uid] = set
		}
		set[t] = struct{}{}
	}
}

// remove drops the connection from both indexes and returns the tracked
// entry, or nil when the id was never attached here.
func (d *directory) remove(connectionID string) *tracked {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.byID[connectionID]
	if !ok {
		return nil
	}
	delete(d.byID, connectionID)
	if uid := t.UserID(); uid != "" {
		if set, ok := d.byUser[uid]; ok {
			delete(set, t)
			if len(set) == 0 {
				delete(d.byUser, uid)
			}
		}
	}
	return t
}

func (d *directory) get(connectionID string) *tracked {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[connectionID]
}

func (d *directory) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
