/*
NAME
  transform.go

DESCRIPTION
  transform.go implements the Transform capability: a spec-string parser
  (`name[=value[,value…]]`) building one of the built-in transforms below,
  and a Chain combinator applying an ordered sequence as a single
  core.Transform.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package transform implements the pipeline's Transform capability: a
// small built-in set of frame-to-frame DSP operations (gain, normalize,
// resample for audio; brightness, contrast, blur for video), selected by
// a user-supplied spec string and composed into an ordered Chain.
package transform

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Chain holds an ordered sequence of transforms; applying it applies each
// element in turn. An empty Chain is the identity.
type Chain struct {
	steps []core.Transform
}

// NewChain builds a Chain from already-constructed transforms.
func NewChain(steps ...core.Transform) *Chain { return &Chain{steps: steps} }

// Apply runs f through every step in order, feeding each step's output to
// the next.
func (c *Chain) Apply(f *core.Frame) (*core.Frame, error) {
	cur := f
	for _, step := range c.steps {
		var err error
		cur, err = step.Apply(cur)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Len reports how many transforms the chain holds.
func (c *Chain) Len() int { return len(c.steps) }

type constructor func(values []string) (core.Transform, error)

var registry = map[string]constructor{
	"gain":       newGain,
	"normalize":  newNormalize,
	"resample":   newResample,
	"brightness": newBrightness,
	"contrast":   newContrast,
	"blur":       newBlur,
}

// Parse builds one Transform from a spec string of the form
// `name[=value[,value…]]`. Unknown names fail with InvalidData.
func Parse(spec string) (core.Transform, error) {
	name, valuesPart, hasValues := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	ctor, ok := registry[name]
	if !ok {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: unknown transform %q", name))
	}
	var values []string
	if hasValues {
		for _, v := range strings.Split(valuesPart, ",") {
			values = append(values, strings.TrimSpace(v))
		}
	}
	return ctor(values)
}

// ParseChain parses each spec string in order and returns them combined
// as a single Chain.
func ParseChain(specs []string) (*Chain, error) {
	steps := make([]core.Transform, 0, len(specs))
	for _, s := range specs {
		t, err := Parse(s)
		if err != nil {
			return nil, err
		}
		steps = append(steps, t)
	}
	return NewChain(steps...), nil
}

func parseFloatValue(name string, values []string) (float64, error) {
	if len(values) != 1 {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: %s requires exactly one numeric value", name))
	}
	v, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: %s value %q is not a number", name, values[0]))
	}
	return v, nil
}

func parseIntValue(name string, values []string) (int, error) {
	if len(values) != 1 {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: %s requires exactly one integer value", name))
	}
	v, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: %s value %q is not an integer", name, values[0]))
	}
	return v, nil
}
