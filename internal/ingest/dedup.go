package ingest

import (
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Dedup drops logs that were already applied. Websocket reconnects replay
// recent logs, so a key is remembered for ttl or until size newer keys push
// it out. It is safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewDedup creates a Dedup holding at most size keys for ttl each.
func NewDedup(size int, ttl time.Duration) *Dedup {
	if size <= 0 {
		size = 4096
	}
	return &Dedup{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// IsDuplicate reports whether the log (txHash, logIndex) has been seen. A
// first sighting is recorded and returns false.
func (d *Dedup) IsDuplicate(txHash string, logIndex uint) bool {
	key := txHash + ":" + strconv.FormatUint(uint64(logIndex), 10)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen.Contains(key) {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

// Len returns the number of remembered logs.
func (d *Dedup) Len() int { return d.seen.Len() }
