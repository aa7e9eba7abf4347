package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptEntry defines one scripted response.
type ScriptEntry struct {
	Text  string
	Error error
}

// Scripted implements Tool with a dual-dispatch script: sequential fallback
// for single-agent calls plus marker-based routing for parallel cycles where
// call order is non-deterministic. Routing matches a substring of the
// system prompt (typically the agent's identity line).
type Scripted struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	captured   []Input
}

// NewScripted creates an empty scripted tool.
func NewScripted() *Scripted {
	return &Scripted{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential queues an entry consumed in order by non-routed calls.
func (s *Scripted) AddSequential(entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequential = append(s.sequential, entry)
}

// AddRouted queues an entry for calls whose system prompt contains marker.
func (s *Scripted) AddRouted(marker string, entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[marker] = append(s.routes[marker], entry)
}

// CapturedInputs returns every Generate input seen so far.
func (s *Scripted) CapturedInputs() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Input, len(s.captured))
	copy(out, s.captured)
	return out
}

// Generate implements Tool.
func (s *Scripted) Generate(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.captured = append(s.captured, in)
	entry, err := s.next(in)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if entry.Error != nil {
		return "", entry.Error
	}
	if in.EmitToken != nil {
		for i, w := range strings.Fields(entry.Text) {
			if i > 0 {
				in.EmitToken(" ")
			}
			in.EmitToken(w)
		}
	}
	return entry.Text, nil
}

func (s *Scripted) next(in Input) (ScriptEntry, error) {
	prompt := in.SystemPrompt + "\n" + in.UserPrompt
	for marker, entries := range s.routes {
		if !strings.Contains(prompt, marker) {
			continue
		}
		idx := s.routeIndex[marker]
		if idx >= len(entries) {
			return ScriptEntry{}, fmt.Errorf("scripted llm: route %q exhausted after %d calls", marker, idx)
		}
		s.routeIndex[marker] = idx + 1
		return entries[idx], nil
	}
	if s.seqIndex >= len(s.sequential) {
		return ScriptEntry{}, fmt.Errorf("scripted llm: sequential script exhausted after %d calls", s.seqIndex)
	}
	entry := s.sequential[s.seqIndex]
	s.seqIndex++
	return entry, nil
}

// Close implements Tool.
func (s *Scripted) Close() error { return nil }
