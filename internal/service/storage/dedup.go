package storage

import "sync"

// DedupSet remembers artifact URLs already written by this process. It only
// saves work; the result store stays the source of truth.
type DedupSet struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// Claim marks url as written and reports whether this call added it.
func (d *DedupSet) Claim(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[url]; ok {
		return false
	}
	d.seen[url] = struct{}{}
	return true
}

// Release forgets url after a failed write so a later request can retry it.
func (d *DedupSet) Release(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, url)
}

// Reset forgets every url, used after the result store is cleared.
func (d *DedupSet) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}

func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
