package fuzz

import (
	"fmt"
	"sort"
	"strings"

	"satharness/internal/outcome"
)

// Tally counts results by kind.
type Tally struct {
	Confirmed     int `json:"confirmed"`
	Abstained     int `json:"abstained"`
	Disagreements int `json:"disagreements"`
	Fatal         int `json:"fatal"`
}

func (t *Tally) add(k outcome.Kind) {
	switch k {
	case outcome.KindConfirmed:
		t.Confirmed++
	case outcome.KindAbstained:
		t.Abstained++
	case outcome.KindDisagreement:
		t.Disagreements++
	case outcome.KindFatal:
		t.Fatal++
	}
}

// Total is the number of results counted.
func (t Tally) Total() int {
	return t.Confirmed + t.Abstained + t.Disagreements + t.Fatal
}

// Stats is the campaign accumulator. Only the campaign goroutine writes it.
type Stats struct {
	Iterations  int               `json:"iterations"`
	Tally       Tally             `json:"tally"`
	ByGenerator map[string]*Tally `json:"by_generator"`
	// Reasons counts abstentions by reason.
	Reasons map[string]int `json:"abstention_reasons"`
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{
		ByGenerator: make(map[string]*Tally),
		Reasons:     make(map[string]int),
	}
}

// Record accounts for one iteration.
func (s *Stats) Record(generator string, res outcome.Result) {
	s.Iterations++
	s.Tally.add(res.Kind)

	t, ok := s.ByGenerator[generator]
	if !ok {
		t = &Tally{}
		s.ByGenerator[generator] = t
	}
	t.add(res.Kind)

	if res.Kind == outcome.KindAbstained {
		s.Reasons[res.Detail]++
	}
}

// Halted reports whether any recorded result halts a campaign.
func (s *Stats) Halted() bool {
	return s.Tally.Disagreements > 0 || s.Tally.Fatal > 0
}

func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d iterations: %d confirmed, %d abstained, %d disagreements, %d fatal",
		s.Iterations, s.Tally.Confirmed, s.Tally.Abstained, s.Tally.Disagreements, s.Tally.Fatal)

	names := make([]string, 0, len(s.ByGenerator))
	for name := range s.ByGenerator {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := s.ByGenerator[name]
		fmt.Fprintf(&b, "; %s %d/%d", name, t.Confirmed, t.Total())
	}
	return b.String()
}
