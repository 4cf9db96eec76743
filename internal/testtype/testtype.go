// Package testtype binds each test type to its lookup table and scoring
// strategy. A session machine is parameterised by a Descriptor instead of
// per-test subclasses.
package testtype

import (
	"errors"
	"fmt"
	"sort"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/scoring"
)

// ErrUnknown is returned for test types without a descriptor.
var ErrUnknown = errors.New("unknown test type")

// Descriptor is everything needed to turn answers into a result.
type Descriptor struct {
	Name     string
	Title    string
	Table    *dimension.Table
	Strategy scoring.Strategy
}

// Evaluation is the output of Evaluate.
type Evaluation struct {
	Tally  dimension.Tally
	Result scoring.Result
}

// Evaluate runs extraction then scoring.
func (d *Descriptor) Evaluate(answers []answer.TestAnswer) (Evaluation, error) {
	tally := dimension.Extract(d.Table, answers)
	res, err := d.Strategy.Score(tally, answers)
	if err != nil {
		return Evaluation{}, fmt.Errorf("score %s: %w", d.Name, err)
	}
	return Evaluation{Tally: tally, Result: res}, nil
}

// Registry resolves descriptors by name.
type Registry struct {
	byName map[string]*Descriptor
}

// Strategies returns the built-in scoring strategy per test type.
func Strategies() map[string]scoring.Strategy {
	return map[string]scoring.Strategy{
		"phq9":    scoring.PHQ9(),
		"gad7":    scoring.GAD7(),
		"holland": scoring.Holland(),
		"mbti":    scoring.MBTI(),
		"bigfive": scoring.BigFive(),
	}
}

// NewRegistry pairs every catalog test type with its table and strategy.
// The tables are checked for coverage against the catalog first.
func NewRegistry(c catalog.Catalog, tables *dimension.Registry, strategies map[string]scoring.Strategy) (*Registry, error) {
	if err := tables.Verify(c); err != nil {
		return nil, fmt.Errorf("verify lookup tables: %w", err)
	}
	r := &Registry{byName: make(map[string]*Descriptor)}
	for _, info := range c.TestTypes() {
		t, _ := tables.Table(info.TestType)
		s, ok := strategies[info.TestType]
		if !ok {
			return nil, fmt.Errorf("no scoring strategy for test type %q", info.TestType)
		}
		r.byName[info.TestType] = &Descriptor{
			Name:     info.TestType,
			Title:    info.Title,
			Table:    t,
			Strategy: s,
		}
	}
	return r, nil
}

// Builtin wires the embedded catalog, tables and strategies.
func Builtin() (*Registry, *catalog.Static, error) {
	c, err := catalog.Builtin()
	if err != nil {
		return nil, nil, err
	}
	tables, err := dimension.BuiltinTables()
	if err != nil {
		return nil, nil, err
	}
	r, err := NewRegistry(c, tables, Strategies())
	if err != nil {
		return nil, nil, err
	}
	return r, c, nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return d, nil
}

// Names lists registered test types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
