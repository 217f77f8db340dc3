// internal/query/filter.go
package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Condition is one entry of a client-supplied filter document: a single
// {operator, value} pair keyed by field name.
type Condition struct {
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Filters maps lead field names to conditions. Unknown fields and operators
// contribute nothing to the predicate; they are not errors.
type Filters map[string]Condition

type fieldClass int

const (
	classText fieldClass = iota
	classEnum
	classNumeric
	classTemporal
	classBool
)

// fields is the closed table of filterable columns. Anything not listed here
// is dropped during compilation.
var fields = map[string]fieldClass{
	"email":            classText,
	"company":          classText,
	"city":             classText,
	"status":           classEnum,
	"source":           classEnum,
	"score":            classNumeric,
	"lead_value":       classNumeric,
	"created_at":       classTemporal,
	"last_activity_at": classTemporal,
	"is_qualified":     classBool,
}

// Predicate is a compiled, parameterized WHERE condition. Clauses are joined
// with AND only; the tenant-scope clause is always the first one and argument
// order matches placeholder order.
type Predicate struct {
	clauses []string
	args    []any
}

// Compile translates a filter document into a predicate scoped to the given
// tenant. Values are always bound positionally, never spliced into the SQL
// text.
func Compile(userID string, f Filters) Predicate {
	p := Predicate{}
	p.add("user_id = %s", userID)

	for _, name := range fieldOrder(f) {
		cond := f[name]
		class, ok := fields[name]
		if !ok {
			continue
		}
		switch class {
		case classText:
			p.compileText(name, cond)
		case classEnum:
			p.compileEnum(name, cond)
		case classNumeric:
			p.compileNumeric(name, cond)
		case classTemporal:
			p.compileTemporal(name, cond)
		case classBool:
			// Presence of the key adds the clause, even for false.
			if b, ok := cond.Value.(bool); ok {
				p.add(name+" = %s", b)
			}
		}
	}
	return p
}

func (p *Predicate) compileText(col string, c Condition) {
	s, ok := c.Value.(string)
	if !ok {
		return
	}
	switch c.Operator {
	case "equals":
		p.add(col+" = %s", s)
	case "contains":
		p.add(col+" ILIKE %s", "%"+escapeLike(s)+"%")
	}
}

func (p *Predicate) compileEnum(col string, c Condition) {
	switch c.Operator {
	case "equals":
		if s, ok := c.Value.(string); ok {
			p.add(col+" = %s", s)
		}
	case "in":
		list, ok := stringList(c.Value)
		if !ok {
			return
		}
		p.add(col+" = ANY(%s)", pq.Array(list))
	}
}

func (p *Predicate) compileNumeric(col string, c Condition) {
	switch c.Operator {
	case "equals":
		if n, ok := number(c.Value); ok {
			p.add(col+" = %s", n)
		}
	case "gt":
		if n, ok := number(c.Value); ok {
			p.add(col+" > %s", n)
		}
	case "lt":
		if n, ok := number(c.Value); ok {
			p.add(col+" < %s", n)
		}
	case "between":
		lo, hi, ok := numberPair(c.Value)
		if !ok {
			return
		}
		p.add(col+" BETWEEN %s AND %s", lo, hi)
	}
}

func (p *Predicate) compileTemporal(col string, c Condition) {
	switch c.Operator {
	case "on":
		if s, ok := c.Value.(string); ok {
			p.add(col+"::date = %s::date", s)
		}
	case "before":
		if s, ok := c.Value.(string); ok {
			p.add(col+" < %s", s)
		}
	case "after":
		if s, ok := c.Value.(string); ok {
			p.add(col+" > %s", s)
		}
	case "between":
		pair, ok := c.Value.([]any)
		if !ok || len(pair) != 2 {
			return
		}
		lo, okLo := pair[0].(string)
		hi, okHi := pair[1].(string)
		if !okLo || !okHi {
			return
		}
		p.add(col+" BETWEEN %s AND %s", lo, hi)
	}
}

// add appends a clause, replacing each %s with the next $n placeholder.
func (p *Predicate) add(tmpl string, args ...any) {
	phs := make([]any, len(args))
	for i := range args {
		phs[i] = fmt.Sprintf("$%d", len(p.args)+i+1)
	}
	p.clauses = append(p.clauses, fmt.Sprintf(tmpl, phs...))
	p.args = append(p.args, args...)
}

// Where returns the assembled WHERE fragment, e.g.
// "WHERE user_id = $1 AND score > $2".
func (p Predicate) Where() string {
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// Args returns the bound values in placeholder order.
func (p Predicate) Args() []any {
	out := make([]any, len(p.args))
	copy(out, p.args)
	return out
}

// NextPlaceholder returns the $n index the next appended value would take,
// used when tacking LIMIT/OFFSET onto a row query.
func (p Predicate) NextPlaceholder() int {
	return len(p.args) + 1
}

// fieldOrder walks the document in the fixed table order so generated SQL is
// deterministic regardless of map iteration.
func fieldOrder(f Filters) []string {
	ordered := []string{
		"email", "company", "city",
		"status", "source",
		"score", "lead_value",
		"created_at", "last_activity_at",
		"is_qualified",
	}
	out := make([]string, 0, len(f))
	for _, name := range ordered {
		if _, ok := f[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func number(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

func numberPair(v any) (float64, float64, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, false
	}
	lo, okLo := pair[0].(float64)
	hi, okHi := pair[1].(float64)
	if !okLo || !okHi {
		return 0, 0, false
	}
	return lo, hi, true
}

func stringList(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// escapeLike neutralizes LIKE wildcards inside a user-supplied substring so
// "50%" matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
