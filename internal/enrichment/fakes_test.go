package enrichment

import (
	"errors"
	"net"
	"sync"
)

type fakeDB struct {
	mu      sync.Mutex
	places  map[string]Place
	err     error
	queries map[string]int
	closed  bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		places:  make(map[string]Place),
		queries: make(map[string]int),
	}
}

func (f *fakeDB) Lookup(ip net.IP) (Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return Place{}, errors.New("lookup on closed database")
	}
	f.queries[ip.String()]++
	if f.err != nil {
		return Place{}, f.err
	}
	return f.places[ip.String()], nil
}

func (f *fakeDB) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDB) queryCount(origin string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[origin]
}

func (f *fakeDB) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func hangzhou() Place {
	return Place{
		Found:        true,
		CountryNames: map[string]string{"en": "China", "zh-CN": "中国"},
		RegionNames:  map[string]string{"en": "Zhejiang", "zh-CN": "浙江"},
		CityNames:    map[string]string{"en": "Hangzhou", "zh-CN": "杭州"},
	}
}
