package bufferpool

import (
	"math/rand/v2"
	"sync"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
)

// RandomReplacer picks a victim uniformly at random among the cached pages.
type RandomReplacer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

var (
	_ Replacer = &RandomReplacer{}
)

func NewRandomReplacer() *RandomReplacer {
	return NewSeededRandomReplacer(rand.Uint64())
}

func NewSeededRandomReplacer(seed uint64) *RandomReplacer {
	return &RandomReplacer{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (r *RandomReplacer) RecordAccess(common.PageIdentity) {}

func (r *RandomReplacer) Remove(common.PageIdentity) {}

func (r *RandomReplacer) ChooseVictim(cached []common.PageIdentity) (common.PageIdentity, error) {
	if len(cached) == 0 {
		return common.PageIdentity{}, ErrNoVictim
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return cached[r.rnd.IntN(len(cached))], nil
}
