package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultTimeout = 2 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	Timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: make(map[string]CheckFunc)}
}

// Register adds a readiness check under name. A nil check is ignored.
func (s *Service) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Status returns the liveness payload.
func (s *Service) Status() map[string]string {
	return map[string]string{"status": "ok"}
}

// Report is the readiness outcome per dependency.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready runs every check concurrently and reports whether all passed.
func (s *Service) Ready(ctx context.Context) (Report, bool) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]CheckFunc, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = checks[i](ctx)
		}(i)
	}
	wg.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	ok := true
	for i, name := range names {
		if results[i] != nil {
			report.Checks[name] = results[i].Error()
			ok = false
			continue
		}
		report.Checks[name] = "ok"
	}
	if !ok {
		report.Status = "unavailable"
	}
	return report, ok
}
