// Package solverflags samples solver configurations and assembles solver
// argument vectors. Flags come from a closed set of descriptors; nothing is
// built by string concatenation.
package solverflags

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// DefaultHighRiskProbability is the chance per run that the high-risk group
// is sampled at all. Unsampled flags keep the solver default.
const DefaultHighRiskProbability = 0.5

// Descriptor is one tunable flag: either an inclusive integer range or a
// categorical choice.
type Descriptor struct {
	Name    string   `yaml:"name"`
	Min     int      `yaml:"min,omitempty"`
	Max     int      `yaml:"max,omitempty"`
	Choices []string `yaml:"choices,omitempty"`
}

// Int describes an integer flag sampled uniformly from [min, max].
func Int(name string, min, max int) Descriptor {
	return Descriptor{Name: name, Min: min, Max: max}
}

// Bool describes a 0/1 flag.
func Bool(name string) Descriptor {
	return Int(name, 0, 1)
}

// OneOf describes a categorical flag.
func OneOf(name string, choices ...string) Descriptor {
	return Descriptor{Name: name, Choices: choices}
}

// Validate checks the descriptor's domain.
func (d Descriptor) Validate() error {
	if !strings.HasPrefix(d.Name, "-") || strings.ContainsAny(d.Name, " \t=") {
		return fmt.Errorf("flag name %q must start with '-' and hold no spaces or '='", d.Name)
	}
	if len(d.Choices) > 0 {
		for _, c := range d.Choices {
			if c == "" {
				return fmt.Errorf("flag %s: empty choice", d.Name)
			}
		}
		return nil
	}
	if d.Min > d.Max {
		return fmt.Errorf("flag %s: empty range [%d, %d]", d.Name, d.Min, d.Max)
	}
	return nil
}

// Sample draws one value and returns the flag as two argv elements.
func (d Descriptor) Sample(rng *rand.Rand) []string {
	if len(d.Choices) > 0 {
		return []string{d.Name, d.Choices[rng.IntN(len(d.Choices))]}
	}
	return []string{d.Name, strconv.Itoa(d.Min + rng.IntN(d.Max-d.Min+1))}
}

// Space is the configuration space of the solver under test.
type Space struct {
	Core []Descriptor `yaml:"core"`
	// HighRisk flags are sampled together, only with HighRiskProbability.
	HighRisk            []Descriptor `yaml:"high_risk"`
	HighRiskProbability float64      `yaml:"high_risk_probability"`
}

// Validate checks every descriptor and the probability.
func (s Space) Validate() error {
	for _, group := range [][]Descriptor{s.Core, s.HighRisk} {
		for _, d := range group {
			if err := d.Validate(); err != nil {
				return err
			}
		}
	}
	if s.HighRiskProbability < 0 || s.HighRiskProbability > 1 {
		return fmt.Errorf("high-risk probability %v outside [0, 1]", s.HighRiskProbability)
	}
	return nil
}

// Sample returns the flags of one random configuration.
func (s Space) Sample(rng *rand.Rand) []string {
	args := make([]string, 0, 2*(len(s.Core)+len(s.HighRisk)))
	for _, d := range s.Core {
		args = append(args, d.Sample(rng)...)
	}
	if len(s.HighRisk) > 0 && rng.Float64() < s.HighRiskProbability {
		for _, d := range s.HighRisk {
			args = append(args, d.Sample(rng)...)
		}
	}
	return args
}

// DefaultSpace is the CryptoMiniSat-style option space the harness was
// built around.
func DefaultSpace() Space {
	return Space{
		Core: []Descriptor{
			Int("--clbtwsimp", 0, 3),
			OneOf("--restart", "geom", "agility", "glue", "glueagility"),
			Int("--agilviollim", 0, 40),
			Int("--gluehist", 1, 500),
			Bool("--updateglue"),
			Bool("--otfhyper"),
			OneOf("--clean", "size", "glue", "activity", "propconfl"),
			Bool("--preclean"),
			Int("--precleanlim", 0, 10),
			Int("--precleantime", 0, 20000),
			Bool("--clearstat"),
			Int("--startclean", 0, 16000),
			Int("--maxredratio", 2, 20),
			Int("--dompickf", 1, 20),
			Int("--flippolf", 1, 3000),
			Bool("--alwaysmoremin"),
			Int("--rewardotfsubsume", 0, 100),
			Bool("--bothprop"),
			Int("--probemultip", 0, 10),
			Int("--cachesize", 10, 100),
			Bool("--calcreach"),
			Int("--cachecutoff", 0, 2000),
			Bool("--elimstrategy"),
			Bool("--elimcomplexupdate"),
			Int("--occlearntmax", 0, 100),
			Bool("--asymmte"),
			Bool("--noextbinsubs"),
			Bool("--extscc"),
			Bool("--vivif"),
			Bool("--sortwatched"),
			Bool("--recur"),
			Int("--compsfrom", 0, 2),
			Int("--compsvar", 20000, 500000),
			Int("--compslimit", 0, 3000),
			Bool("--preschedsimp"),
			Bool("--implicitmanip"),
		},
		HighRisk: []Descriptor{
			Bool("--scc"),
			Bool("--schedsimplify"),
			Bool("--varelim"),
			Bool("--comps"),
			Bool("--subsume1"),
			Bool("--block"),
			Bool("--probe"),
			Bool("--simplify"),
			Bool("--binpri"),
			Bool("--stamp"),
			Bool("--cache"),
			Bool("--otfsubsume"),
			Bool("--renumber"),
			Bool("--savemem"),
			Bool("--moreminim"),
		},
		HighRiskProbability: DefaultHighRiskProbability,
	}
}
