// Package compiler turns CUE workflow definitions into registered actions,
// conditions and schedules.
//
// A definition has three top-level structs:
//
//	action: deploy: {builtin: "log", args: {message: "deploying"}}
//	condition: retry: {lua: "n = (n or 0) + 1 return n < 3"}
//	schedule: release: {
//		vertices: {work: {kind: "action", action: "deploy"}}
//		edges: [{from: "start", to: "work"}, {from: "work", to: "end"}]
//	}
//
// Compile parses a CUE value into a Definition, Validate checks it and
// Install registers everything against a set of registries. Vertex
// labels start and end are reserved for the entry and exit vertices.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sequencer/internal/schedule"
)

// Reserved vertex labels.
const (
	LabelStart = "start"
	LabelEnd   = "end"
)

// Definition is a parsed workflow package.
type Definition struct {
	Actions    []ElementDef
	Conditions []ElementDef
	Schedules  []ScheduleDef
}

// ElementDef describes an action or condition. Exactly one of Builtin and
// Lua is set.
type ElementDef struct {
	Name        string
	Description string
	Builtin     string
	Lua         string
	Args        map[string]any
	Pos         token.Pos
}

// ScheduleDef describes one schedule graph.
type ScheduleDef struct {
	Name        string
	Description string
	Vertices    []VertexDef
	Edges       []EdgeDef
	Insertions  []InsertionDef
	Pos         token.Pos
}

// VertexDef is a labelled vertex. Which reference fields apply depends on
// Kind.
type VertexDef struct {
	Label     string
	Kind      schedule.Kind
	Action    string   // action
	Schedule  string   // schedule
	Variables []string // sync_start
	Start     string   // sync_end
	MaxUses   int      // insert; 0 means unlimited
	Pos       token.Pos
}

// EdgeDef links two labels, optionally guarded by a named condition.
type EdgeDef struct {
	From string
	To   string
	When string
	Pos  token.Pos
}

// InsertionDef grafts an action or a schedule into an insert point.
type InsertionDef struct {
	Point    string
	Action   string
	Schedule string
	Pos      token.Pos
}

// References returns the schedules s dispatches, in declaration order.
func (s ScheduleDef) References() []string {
	var refs []string
	for _, v := range s.Vertices {
		if v.Kind == schedule.KindSubSchedule && v.Schedule != "" {
			refs = append(refs, v.Schedule)
		}
	}
	for _, in := range s.Insertions {
		if in.Schedule != "" {
			refs = append(refs, in.Schedule)
		}
	}
	return refs
}

// Schedule returns the schedule definition called name.
func (d *Definition) Schedule(name string) (ScheduleDef, bool) {
	for _, s := range d.Schedules {
		if s.Name == name {
			return s, true
		}
	}
	return ScheduleDef{}, false
}

// Compile parses a CUE value holding action, condition and schedule
// structs. All three are optional.
func Compile(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{}
	var err error
	if def.Actions, err = parseElements(v, "action"); err != nil {
		return nil, err
	}
	if def.Conditions, err = parseElements(v, "condition"); err != nil {
		return nil, err
	}

	schedVal := v.LookupPath(cue.ParsePath("schedule"))
	if !schedVal.Exists() {
		return def, nil
	}
	iter, err := schedVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		s, err := parseSchedule(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		def.Schedules = append(def.Schedules, s)
	}
	return def, nil
}

func parseElements(v cue.Value, field string) ([]ElementDef, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ElementDef
	for iter.Next() {
		ev := iter.Value()
		e := ElementDef{Name: iter.Label(), Pos: ev.Pos()}
		if e.Description, err = optionalString(ev, "description"); err != nil {
			return nil, err
		}
		if e.Builtin, err = optionalString(ev, "builtin"); err != nil {
			return nil, err
		}
		if e.Lua, err = optionalString(ev, "lua"); err != nil {
			return nil, err
		}
		if args := ev.LookupPath(cue.ParsePath("args")); args.Exists() {
			if err := args.Decode(&e.Args); err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("%s.%s.args", field, e.Name),
					Message: fmt.Sprintf("args must be a struct: %v", err),
					Pos:     args.Pos(),
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func parseSchedule(name string, v cue.Value) (ScheduleDef, error) {
	s := ScheduleDef{Name: name, Pos: v.Pos()}
	var err error
	if s.Description, err = optionalString(v, "description"); err != nil {
		return s, err
	}

	verts := v.LookupPath(cue.ParsePath("vertices"))
	if verts.Exists() {
		iter, err := verts.Fields()
		if err != nil {
			return s, formatCUEError(err)
		}
		for iter.Next() {
			vd, err := parseVertex(name, iter.Label(), iter.Value())
			if err != nil {
				return s, err
			}
			s.Vertices = append(s.Vertices, vd)
		}
	}

	edges := v.LookupPath(cue.ParsePath("edges"))
	if edges.Exists() {
		iter, err := edges.List()
		if err != nil {
			return s, formatCUEError(err)
		}
		for iter.Next() {
			ev := iter.Value()
			e := EdgeDef{Pos: ev.Pos()}
			if e.From, err = requiredString(ev, "from", fmt.Sprintf("schedule.%s.edges", name)); err != nil {
				return s, err
			}
			if e.To, err = requiredString(ev, "to", fmt.Sprintf("schedule.%s.edges", name)); err != nil {
				return s, err
			}
			if e.When, err = optionalString(ev, "when"); err != nil {
				return s, err
			}
			s.Edges = append(s.Edges, e)
		}
	}

	ins := v.LookupPath(cue.ParsePath("insertions"))
	if ins.Exists() {
		iter, err := ins.List()
		if err != nil {
			return s, formatCUEError(err)
		}
		for iter.Next() {
			iv := iter.Value()
			in := InsertionDef{Pos: iv.Pos()}
			if in.Point, err = requiredString(iv, "point", fmt.Sprintf("schedule.%s.insertions", name)); err != nil {
				return s, err
			}
			if in.Action, err = optionalString(iv, "action"); err != nil {
				return s, err
			}
			if in.Schedule, err = optionalString(iv, "schedule"); err != nil {
				return s, err
			}
			s.Insertions = append(s.Insertions, in)
		}
	}
	return s, nil
}

func parseVertex(sched, label string, v cue.Value) (VertexDef, error) {
	field := fmt.Sprintf("schedule.%s.vertices.%s", sched, label)
	vd := VertexDef{Label: label, Pos: v.Pos()}

	kindName, err := requiredString(v, "kind", field)
	if err != nil {
		return vd, err
	}
	kind, ok := schedule.ParseKind(kindName)
	if !ok || kind == schedule.KindStart || kind == schedule.KindEnd {
		return vd, &CompileError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown vertex kind %q", kindName),
			Pos:     v.Pos(),
		}
	}
	vd.Kind = kind

	if vd.Action, err = optionalString(v, "action"); err != nil {
		return vd, err
	}
	if vd.Schedule, err = optionalString(v, "schedule"); err != nil {
		return vd, err
	}
	if vd.Start, err = optionalString(v, "start"); err != nil {
		return vd, err
	}
	if vars := v.LookupPath(cue.ParsePath("variables")); vars.Exists() {
		iter, err := vars.List()
		if err != nil {
			return vd, formatCUEError(err)
		}
		for iter.Next() {
			name, err := iter.Value().String()
			if err != nil {
				return vd, formatCUEError(err)
			}
			vd.Variables = append(vd.Variables, name)
		}
	}
	if mu := v.LookupPath(cue.ParsePath("max_uses")); mu.Exists() {
		n, err := mu.Int64()
		if err != nil {
			return vd, formatCUEError(err)
		}
		vd.MaxUses = int(n)
	}
	return vd, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, field, parent string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", &CompileError{
			Field:   parent + "." + field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
