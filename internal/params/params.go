/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package params implements the tweakable parameter table: bounded
// float64 knobs with a name, a range, a default and a documentation
// string, settable from the command line via "-p name=value".
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Param is one tweakable knob.
type Param struct {
	Name    string  `yaml:"name"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
	Doc     string  `yaml:"doc"`

	value *float64
}

// Value returns the parameter's current value.
func (p *Param) Value() float64 {
	return *p.value
}

// Table is an ordered registry of parameters, keyed by name.
type Table struct {
	order []string
	byKey map[string]*Param
}

// NewTable returns an empty parameter table.
func NewTable() *Table {
	return &Table{byKey: map[string]*Param{}}
}

// Register adds a new parameter bound to dst, which holds its current
// value; dst is set to def immediately.
func (t *Table) Register(name string, min, max, def float64, doc string, dst *float64) {
	if _, ok := t.byKey[name]; ok {
		panic(fmt.Sprintf("params: duplicate registration of %q", name))
	}
	*dst = def
	p := &Param{Name: name, Min: min, Max: max, Default: def, Doc: doc, value: dst}
	t.byKey[name] = p
	t.order = append(t.order, name)
}

// Lookup returns the parameter named name, if registered.
func (t *Table) Lookup(name string) (*Param, bool) {
	p, ok := t.byKey[name]
	return p, ok
}

// Names returns the registered parameter names in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Tweak applies a "-p" argument of the form "name=value". It returns
// the resolved parameter and value on success.
func (t *Table) Tweak(arg string) (*Param, float64, error) {
	q := strings.IndexByte(arg, '=')
	if q < 0 {
		return nil, 0, fmt.Errorf("params: -p argument %q is missing '=value'", arg)
	}
	name, rest := arg[:q], arg[q+1:]
	p, ok := t.byKey[name]
	if !ok {
		return nil, 0, fmt.Errorf("params: unknown parameter %q (try -p '?')", name)
	}
	d, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("params: -p %q bad value %q", name, rest)
	}
	if d < p.Min {
		return nil, 0, fmt.Errorf("params: -p %q below min value (%g)", name, p.Min)
	}
	if d > p.Max {
		return nil, 0, fmt.Errorf("params: -p %q above max value (%g)", name, p.Max)
	}
	*p.value = d
	return p, d, nil
}

// Describe renders the full name/min/max/default/doc block for one
// parameter, matching the original CLI's "-p name" query output.
func (t *Table) Describe(name string) (string, error) {
	p, ok := t.byKey[name]
	if !ok {
		return "", fmt.Errorf("params: unknown parameter %q (try -p '?')", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Parameter:\n\t%s\n", p.Name)
	fmt.Fprintf(&b, "Minimum:\n\t%.3e\n", p.Min)
	fmt.Fprintf(&b, "Maximum:\n\t%.3e\n", p.Max)
	fmt.Fprintf(&b, "Default:\n\t%.3e\n", p.Default)
	fmt.Fprintf(&b, "Description:\n\t%s\n", p.Doc)
	return b.String(), nil
}

// List renders the "-p ?" listing of all registered parameter names.
func (t *Table) List() string {
	names := t.Names()
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("List of available parameters:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "\t%s\n", n)
	}
	return b.String()
}

// Report renders the startup "# param ..." dump line for every
// registered parameter, in the original's trace-channel format.
func (t *Table) Report() string {
	var b strings.Builder
	for _, n := range t.order {
		p := t.byKey[n]
		fmt.Fprintf(&b, "# param %s %g # min %g, max %g, default %g\n",
			p.Name, p.Value(), p.Min, p.Max, p.Default)
	}
	return b.String()
}

// YAML marshals the full table as a machine-readable dump. The "-p ?"
// listing does not use it; that prints List's plain names.
func (t *Table) YAML() ([]byte, error) {
	out := make([]*Param, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.byKey[n])
	}
	return yaml.Marshal(out)
}
