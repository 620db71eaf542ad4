package service

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/rl1809/cart-checkout/internal/port"
)

const fenceStripes = 256

// cacheFence counts cart invalidations per user so that a cache fill can tell
// whether the database read it carries may predate a commit. Users hash onto
// stripes; a collision only costs a skipped fill.
type cacheFence struct {
	stripes [fenceStripes]atomic.Uint64
}

var fences sync.Map // port.CartCache -> *cacheFence

// fenceFor returns the fence shared by every service writing through cache.
func fenceFor(cache port.CartCache) *cacheFence {
	f, _ := fences.LoadOrStore(cache, &cacheFence{})
	return f.(*cacheFence)
}

func (f *cacheFence) stripe(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &f.stripes[h.Sum32()%fenceStripes]
}

func (f *cacheFence) generation(userID string) uint64 {
	return f.stripe(userID).Load()
}

func (f *cacheFence) advance(userID string) {
	f.stripe(userID).Add(1)
}
