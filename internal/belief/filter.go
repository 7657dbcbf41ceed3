// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package belief

import (
	"github.com/relabs-tech/wallfollower/internal/model"
)

// Filter is a recursive naive-Bayes estimator: the posterior of one update
// becomes the prior of the next.
type Filter struct {
	model  *model.FusionModel
	disc   *model.Discretizer
	static Belief
	cur    Belief
	floor  float64
	steps  int
	resets int
}

// Option configures a Filter.
type Option func(*Filter)

// WithFloor keeps every label at or above p after each update. Zero disables it.
func WithFloor(p float64) Option {
	return func(f *Filter) {
		if p > 0 && p*float64(len(f.static.labels)) < 1 {
			f.floor = p
		}
	}
}

// WithPrior replaces the uniform static prior. The prior must cover the
// model's labels in the same order; otherwise it is ignored.
func WithPrior(b Belief) Option {
	return func(f *Filter) {
		if len(b.labels) != len(f.static.labels) {
			return
		}
		for i, l := range b.labels {
			if f.static.labels[i] != l {
				return
			}
		}
		f.static = b.clone()
	}
}

// NewFilter creates a filter whose belief starts at the static prior.
func NewFilter(m *model.FusionModel, opts ...Option) *Filter {
	f := &Filter{
		model:  m,
		disc:   m.Discretizer(),
		static: Uniform(m.Labels()),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.cur = f.static.clone()
	return f
}

// Step describes one update.
type Step struct {
	Bins       map[model.Sensor]model.Bin
	Likelihood map[model.Label]float64
	Posterior  Belief
	// Reset is true when every label had zero mass and the filter fell back
	// to the static prior.
	Reset bool
}

// Update folds one set of readings into the belief and returns the posterior.
func (f *Filter) Update(r model.Readings) Belief {
	return f.Observe(r).Posterior
}

// Observe is Update with the intermediate values kept for telemetry.
// Model sensors without a reading contribute no evidence; readings for
// sensors outside the model are ignored.
func (f *Filter) Observe(r model.Readings) Step {
	labels := f.cur.labels
	step := Step{
		Bins:       make(map[model.Sensor]model.Bin, len(r)),
		Likelihood: make(map[model.Label]float64, len(labels)),
	}

	for _, s := range f.model.Sensors() {
		v, ok := r[s]
		if !ok {
			continue
		}
		b, err := f.disc.Bin(s, v)
		if err != nil {
			continue
		}
		step.Bins[s] = b
	}

	post := make([]float64, len(labels))
	var total float64
	for i, l := range labels {
		lik := 1.0
		for s, b := range step.Bins {
			lik *= f.model.Likelihood(l, s, b)
		}
		step.Likelihood[l] = lik
		post[i] = lik * f.cur.probs[i]
		total += post[i]
	}

	f.steps++
	if total == 0 {
		f.resets++
		f.cur = f.static.clone()
		step.Reset = true
		step.Posterior = f.cur.clone()
		return step
	}

	for i := range post {
		post[i] /= total
	}
	if f.floor > 0 {
		applyFloor(post, f.floor)
	}
	f.cur = Belief{labels: labels, probs: post}
	step.Posterior = f.cur.clone()
	return step
}

// applyFloor raises labels below floor and rescales the others so the
// distribution still sums to one.
func applyFloor(p []float64, floor float64) {
	fixed := make([]bool, len(p))
	for {
		var nFixed int
		var rest float64
		for i, x := range p {
			if fixed[i] || x < floor {
				fixed[i] = true
				nFixed++
			} else {
				rest += x
			}
		}
		if nFixed == 0 || rest == 0 {
			return
		}
		scale := (1 - floor*float64(nFixed)) / rest
		again := false
		for i, x := range p {
			if fixed[i] {
				p[i] = floor
				continue
			}
			p[i] = x * scale
			if p[i] < floor {
				again = true
			}
		}
		if !again {
			return
		}
	}
}

// Belief returns the current belief.
func (f *Filter) Belief() Belief { return f.cur.clone() }

// Prior returns the static prior the filter resets to.
func (f *Filter) Prior() Belief { return f.static.clone() }

// Reset restores the static prior.
func (f *Filter) Reset() { f.cur = f.static.clone() }

// Steps returns the number of updates and how many of them reset the belief.
func (f *Filter) Steps() (updates, resets int) { return f.steps, f.resets }
