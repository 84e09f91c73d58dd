package ingestion

import (
	"math/rand"
	"sync"
	"time"
)

// Resolver picks the terminal status of a completion.
type Resolver interface {
	Resolve() Status
}

// DeterministicResolver always completes.
type DeterministicResolver struct{}

func (DeterministicResolver) Resolve() Status { return StatusCompleted }

// RandomResolver picks uniformly among completed, failed and cancelled.
type RandomResolver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomResolver seeds from the clock when seed is zero.
func NewRandomResolver(seed int64) *RandomResolver {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomResolver{rng: rand.New(rand.NewSource(seed))}
}

var randomOutcomes = [...]Status{StatusCompleted, StatusFailed, StatusCancelled}

func (r *RandomResolver) Resolve() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return randomOutcomes[r.rng.Intn(len(randomOutcomes))]
}

// NewResolver maps the configured mode ("deterministic" or "random").
func NewResolver(mode string) Resolver {
	if mode == "random" {
		return NewRandomResolver(0)
	}
	return DeterministicResolver{}
}
