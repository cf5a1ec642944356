package database

import (
	"database/sql"
	"hash/fnv"
)

// cachedStmt is a single statement cache slot. Empty slots have a zero
// lastUsed stamp so they are always preferred for reuse.
type cachedStmt struct {
	hash     uint32
	lastUsed int64
	text     string
	stmt     *sql.Stmt
}

// stmtCache keeps prepared statements alive across queries so the hot
// path never re-prepares. Lookup hashes the statement text first and only
// falls back to a full compare on a hash match, so misses stay cheap.
// When every slot is taken the least recently used statement is evicted.
type stmtCache struct {
	slots []cachedStmt
	clock int64
}

func newStmtCache(capacity int) *stmtCache {
	if capacity < 1 {
		capacity = 1
	}
	return &stmtCache{slots: make([]cachedStmt, capacity)}
}

func hashText(text string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	return h.Sum32()
}

// lookup returns the cached statement for text, or nil on a miss.
func (c *stmtCache) lookup(text string) *sql.Stmt {
	hash := hashText(text)
	for i := range c.slots {
		entry := &c.slots[i]
		if entry.stmt != nil && entry.hash == hash && entry.text == text {
			c.clock++
			entry.lastUsed = c.clock
			return entry.stmt
		}
	}
	return nil
}

// insert stores st under text, evicting the least recently used slot when
// the cache is full. The evicted statement is returned so the caller can
// close it; nil means no eviction took place.
func (c *stmtCache) insert(text string, st *sql.Stmt) *sql.Stmt {
	victim := &c.slots[0]
	for i := 1; i < len(c.slots); i++ {
		if c.slots[i].lastUsed < victim.lastUsed {
			victim = &c.slots[i]
		}
	}

	evicted := victim.stmt
	c.clock++
	victim.hash = hashText(text)
	victim.lastUsed = c.clock
	victim.text = text
	victim.stmt = st
	return evicted
}

// discard empties the cache and returns every held statement so the
// caller can close them. Used when tearing down a session or when the
// backing connection is known to be gone.
func (c *stmtCache) discard() []*sql.Stmt {
	var stmts []*sql.Stmt
	for i := range c.slots {
		if c.slots[i].stmt != nil {
			stmts = append(stmts, c.slots[i].stmt)
		}
		c.slots[i] = cachedStmt{}
	}
	c.clock = 0
	return stmts
}

// size reports how many slots currently hold a statement.
func (c *stmtCache) size() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].stmt != nil {
			n++
		}
	}
	return n
}
