package modules

// Cache maps canonical module ids to their entries, remembering insertion
// order for inspection.
type Cache struct {
	entries map[string]*Module
	order   []string
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Module)}
}

// Get returns the entry for id.
func (c *Cache) Get(id string) (*Module, bool) {
	m, ok := c.entries[id]
	return m, ok
}

// Put inserts m, replacing any entry with the same id.
func (c *Cache) Put(m *Module) {
	if _, ok := c.entries[m.ID]; !ok {
		c.order = append(c.order, m.ID)
	}
	c.entries[m.ID] = m
}

// Remove drops id from the cache.
func (c *Cache) Remove(id string) {
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache) Len() int { return len(c.entries) }

// Snapshot returns copies of all entries in insertion order.
func (c *Cache) Snapshot() []Module {
	out := make([]Module, 0, len(c.order))
	for _, k := range c.order {
		m := *c.entries[k]
		m.Dirs = append([]string(nil), m.Dirs...)
		out = append(out, m)
	}
	return out
}
