package common

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators at runtime.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

func NewPauseSet(modules ...string) *PauseSet {
	set := &PauseSet{paused: make(map[string]struct{})}
	for _, module := range modules {
		set.Pause(module)
	}
	return set
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paused[strings.TrimSpace(module)]
	return ok
}

func (s *PauseSet) Pause(module string) {
	module = strings.TrimSpace(module)
	if module == "" {
		return
	}
	s.mu.Lock()
	s.paused[module] = struct{}{}
	s.mu.Unlock()
}

func (s *PauseSet) Resume(module string) {
	s.mu.Lock()
	delete(s.paused, strings.TrimSpace(module))
	s.mu.Unlock()
}

// Paused lists the paused modules in sorted order.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
