package minigame

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrDuplicateMinigame = errors.New("minigame already registered")
	ErrUnknownMinigame   = errors.New("unknown minigame")
)

// Catalog holds the published minigames by name.
type Catalog struct {
	mutex     sync.RWMutex
	minigames map[string]*Minigame
}

func NewCatalog() *Catalog {
	return &Catalog{minigames: make(map[string]*Minigame)}
}

// Register publishes m and adds it to the catalog.
func (c *Catalog) Register(m *Minigame) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.minigames[m.Name()]; exists {
		return ErrDuplicateMinigame
	}
	m.Publish()
	c.minigames[m.Name()] = m
	return nil
}

func (c *Catalog) Get(name string) (*Minigame, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	m, ok := c.minigames[name]
	return m, ok
}

// List returns the registered minigames sorted by name.
func (c *Catalog) List() []*Minigame {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	list := make([]*Minigame, 0, len(c.minigames))
	for _, m := range c.minigames {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
