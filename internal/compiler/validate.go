package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/roach88/sequencer/internal/catalog"
	"github.com/roach88/sequencer/internal/schedule"
	"github.com/roach88/sequencer/internal/script"
)

// Validation error codes (E120-E139)
const (
	// Element errors (E120-E124)
	ErrElementSource  = "E120" // exactly one of builtin or lua
	ErrUnknownBuiltin = "E121" // builtin not in the catalog
	ErrScriptSyntax   = "E122" // lua body does not compile

	// Schedule errors (E125-E139)
	ErrReservedLabel      = "E125" // start and end cannot be declared
	ErrMissingReference   = "E126" // vertex or insertion lacks its reference
	ErrUndefinedReference = "E127" // action, condition or schedule not defined
	ErrUndefinedLabel     = "E128" // edge, sync_end or insertion names no such vertex
	ErrInvalidEdge        = "E129" // edge into start or out of end
	ErrInvalidMaxUses     = "E130" // negative insert budget
	ErrInapplicableField  = "E131" // field does not apply to the vertex kind
	ErrScheduleCycle      = "E132" // schedules reference each other
	ErrWrongVertexKind    = "E133" // label names a vertex of the wrong kind
	ErrAmbiguousInsertion = "E134" // insertion names both an action and a schedule
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func newError(code, field string, pos token.Pos, format string, args ...any) ValidationError {
	e := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
	if pos.IsValid() {
		e.Line = pos.Line()
	}
	return e
}

// Validate checks a definition for dangling references and malformed
// graphs. Returns all errors found (does not fail-fast), including
// schedule reference cycles.
func Validate(def *Definition) []ValidationError {
	var errs []ValidationError

	actions := map[string]bool{}
	for _, a := range def.Actions {
		actions[a.Name] = true
		errs = append(errs, validateElement("action", a, catalog.ActionNames())...)
	}
	conditions := map[string]bool{}
	for _, c := range def.Conditions {
		conditions[c.Name] = true
		errs = append(errs, validateElement("condition", c, catalog.ConditionNames())...)
	}
	schedules := map[string]bool{}
	for _, s := range def.Schedules {
		schedules[s.Name] = true
	}

	for _, s := range def.Schedules {
		errs = append(errs, validateSchedule(s, actions, conditions, schedules)...)
	}
	if _, cycles := installOrder(def); len(cycles) > 0 {
		errs = append(errs, cycles...)
	}
	return errs
}

func validateElement(what string, e ElementDef, builtins []string) []ValidationError {
	field := what + "." + e.Name
	switch {
	case e.Builtin == "" && e.Lua == "":
		return []ValidationError{newError(ErrElementSource, field, e.Pos, "%s needs a builtin or a lua body", what)}
	case e.Builtin != "" && e.Lua != "":
		return []ValidationError{newError(ErrElementSource, field, e.Pos, "%s has both builtin and lua", what)}
	case e.Builtin != "" && !slices.Contains(builtins, e.Builtin):
		return []ValidationError{newError(ErrUnknownBuiltin, field+".builtin", e.Pos,
			"unknown builtin %s %q, expected one of %v", what, e.Builtin, builtins)}
	case e.Lua != "":
		if err := script.Check(what+"."+e.Name, e.Lua); err != nil {
			return []ValidationError{newError(ErrScriptSyntax, field+".lua", e.Pos, "%v", err)}
		}
	}
	return nil
}

func validateSchedule(s ScheduleDef, actions, conditions, schedules map[string]bool) []ValidationError {
	var errs []ValidationError
	prefix := "schedule." + s.Name

	kinds := map[string]schedule.Kind{
		LabelStart: schedule.KindStart,
		LabelEnd:   schedule.KindEnd,
	}
	for _, v := range s.Vertices {
		if v.Label == LabelStart || v.Label == LabelEnd {
			errs = append(errs, newError(ErrReservedLabel, prefix+".vertices."+v.Label, v.Pos,
				"label %q is reserved", v.Label))
			continue
		}
		kinds[v.Label] = v.Kind
	}

	for _, v := range s.Vertices {
		if v.Label == LabelStart || v.Label == LabelEnd {
			continue
		}
		errs = append(errs, validateVertex(prefix+".vertices."+v.Label, v, kinds, actions, schedules)...)
	}

	for i, e := range s.Edges {
		field := fmt.Sprintf("%s.edges[%d]", prefix, i)
		if _, ok := kinds[e.From]; !ok {
			errs = append(errs, newError(ErrUndefinedLabel, field+".from", e.Pos, "no vertex labelled %q", e.From))
		}
		if _, ok := kinds[e.To]; !ok {
			errs = append(errs, newError(ErrUndefinedLabel, field+".to", e.Pos, "no vertex labelled %q", e.To))
		}
		if e.To == LabelStart {
			errs = append(errs, newError(ErrInvalidEdge, field, e.Pos, "edges cannot enter start"))
		}
		if e.From == LabelEnd {
			errs = append(errs, newError(ErrInvalidEdge, field, e.Pos, "edges cannot leave end"))
		}
		if e.When != "" && !conditions[e.When] {
			errs = append(errs, newError(ErrUndefinedReference, field+".when", e.Pos, "condition %q is not defined", e.When))
		}
	}

	for i, in := range s.Insertions {
		field := fmt.Sprintf("%s.insertions[%d]", prefix, i)
		kind, ok := kinds[in.Point]
		switch {
		case !ok:
			errs = append(errs, newError(ErrUndefinedLabel, field+".point", in.Pos, "no vertex labelled %q", in.Point))
		case kind != schedule.KindInsert:
			errs = append(errs, newError(ErrWrongVertexKind, field+".point", in.Pos,
				"%q is a %s vertex, not an insert point", in.Point, kind))
		}
		switch {
		case in.Action == "" && in.Schedule == "":
			errs = append(errs, newError(ErrMissingReference, field, in.Pos, "insertion needs an action or a schedule"))
		case in.Action != "" && in.Schedule != "":
			errs = append(errs, newError(ErrAmbiguousInsertion, field, in.Pos, "insertion names both an action and a schedule"))
		case in.Action != "" && !actions[in.Action]:
			errs = append(errs, newError(ErrUndefinedReference, field+".action", in.Pos, "action %q is not defined", in.Action))
		case in.Schedule != "" && !schedules[in.Schedule]:
			errs = append(errs, newError(ErrUndefinedReference, field+".schedule", in.Pos, "schedule %q is not defined", in.Schedule))
		}
	}
	return errs
}

func validateVertex(field string, v VertexDef, kinds map[string]schedule.Kind, actions, schedules map[string]bool) []ValidationError {
	var errs []ValidationError

	// Reference fields each belong to exactly one kind.
	owners := []struct {
		name string
		set  bool
		kind schedule.Kind
	}{
		{"action", v.Action != "", schedule.KindAction},
		{"schedule", v.Schedule != "", schedule.KindSubSchedule},
		{"start", v.Start != "", schedule.KindSynchronizationEnd},
		{"variables", len(v.Variables) > 0, schedule.KindSynchronizationStart},
		{"max_uses", v.MaxUses != 0, schedule.KindInsert},
	}
	for _, o := range owners {
		if o.set && o.kind != v.Kind {
			errs = append(errs, newError(ErrInapplicableField, field+"."+o.name, v.Pos,
				"%s does not apply to a %s vertex", o.name, v.Kind))
		}
	}

	switch v.Kind {
	case schedule.KindAction:
		switch {
		case v.Action == "":
			errs = append(errs, newError(ErrMissingReference, field+".action", v.Pos, "action vertex needs an action"))
		case !actions[v.Action]:
			errs = append(errs, newError(ErrUndefinedReference, field+".action", v.Pos, "action %q is not defined", v.Action))
		}
	case schedule.KindSubSchedule:
		switch {
		case v.Schedule == "":
			errs = append(errs, newError(ErrMissingReference, field+".schedule", v.Pos, "schedule vertex needs a schedule"))
		case !schedules[v.Schedule]:
			errs = append(errs, newError(ErrUndefinedReference, field+".schedule", v.Pos, "schedule %q is not defined", v.Schedule))
		}
	case schedule.KindSynchronizationEnd:
		kind, ok := kinds[v.Start]
		switch {
		case v.Start == "":
			errs = append(errs, newError(ErrMissingReference, field+".start", v.Pos, "sync_end vertex needs its sync_start"))
		case !ok:
			errs = append(errs, newError(ErrUndefinedLabel, field+".start", v.Pos, "no vertex labelled %q", v.Start))
		case kind != schedule.KindSynchronizationStart:
			errs = append(errs, newError(ErrWrongVertexKind, field+".start", v.Pos,
				"%q is a %s vertex, not a sync_start", v.Start, kind))
		}
	case schedule.KindInsert:
		if v.MaxUses < 0 {
			errs = append(errs, newError(ErrInvalidMaxUses, field+".max_uses", v.Pos, "max_uses must not be negative"))
		}
	}
	return errs
}
