package experiment

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Targeting predicates form a tagged union. Rules parse once, at create,
// patch, or load time, so unknown operators are rejected up front instead
// of surfacing mid-assignment.

// Operator names accepted inside a rule mapping.
const (
	opIn  = "in"
	opEq  = "eq"
	opNeq = "neq"
	opGte = "gte"
	opLte = "lte"
)

// Predicate decides whether a single attribute value satisfies a rule.
type Predicate interface {
	Matches(value any) bool
	// raw rebuilds the JSON form the predicate was parsed from, so stored
	// targeting round-trips through the API unchanged.
	raw() any
}

// Literal matches by plain equality.
type Literal struct {
	Want any
}

func (p Literal) Matches(value any) bool { return looseEqual(value, p.Want) }
func (p Literal) raw() any               { return p.Want }

// Membership matches when the value equals any listed element.
type Membership struct {
	Values []any
}

func (p Membership) Matches(value any) bool {
	for _, want := range p.Values {
		if looseEqual(value, want) {
			return true
		}
	}
	return false
}

func (p Membership) raw() any { return p.Values }

type clause struct {
	op   string
	want any
}

func (c clause) matches(value any) bool {
	switch c.op {
	case opIn:
		values, ok := c.want.([]any)
		if !ok {
			return false
		}
		return Membership{Values: values}.Matches(value)
	case opEq:
		return looseEqual(value, c.want)
	case opNeq:
		return !looseEqual(value, c.want)
	case opGte:
		return compareVersionValues(value, c.want) >= 0
	case opLte:
		return compareVersionValues(value, c.want) <= 0
	}
	return false
}

// Clauses is an operator mapping; every clause must hold.
type Clauses struct {
	clauses []clause
}

func (p Clauses) Matches(value any) bool {
	if len(p.clauses) == 0 {
		return false
	}
	for _, c := range p.clauses {
		if !c.matches(value) {
			return false
		}
	}
	return true
}

func (p Clauses) raw() any {
	m := make(map[string]any, len(p.clauses))
	for _, c := range p.clauses {
		m[c.op] = c.want
	}
	return m
}

// Rejecting never matches. Rules containing an unknown operator or a
// malformed body parse into it, preserving the original payload for echo.
type Rejecting struct {
	Original any
}

func (Rejecting) Matches(any) bool { return false }
func (p Rejecting) raw() any       { return p.Original }

// Rules maps attribute names to predicates.
type Rules map[string]Predicate

// ParseRules converts a decoded targeting mapping into typed predicates.
// A nil mapping parses to empty rules.
func ParseRules(raw map[string]any) Rules {
	rules := make(Rules, len(raw))
	for attr, body := range raw {
		rules[attr] = parsePredicate(body)
	}
	return rules
}

func parsePredicate(body any) Predicate {
	switch v := body.(type) {
	case []any:
		return Membership{Values: v}
	case map[string]any:
		if len(v) == 0 {
			return Rejecting{Original: v}
		}
		ops := make([]string, 0, len(v))
		for op := range v {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		clauses := make([]clause, 0, len(ops))
		for _, op := range ops {
			switch op {
			case opIn, opEq, opNeq, opGte, opLte:
				clauses = append(clauses, clause{op: op, want: v[op]})
			default:
				return Rejecting{Original: v}
			}
		}
		return Clauses{clauses: clauses}
	default:
		return Literal{Want: body}
	}
}

// Raw rebuilds the targeting mapping for persistence and API echo.
func (r Rules) Raw() map[string]any {
	raw := make(map[string]any, len(r))
	for attr, pred := range r {
		raw[attr] = pred.raw()
	}
	return raw
}

// Empty reports whether no rules are configured.
func (r Rules) Empty() bool { return len(r) == 0 }

// Matches evaluates the rules against caller attributes. Empty rules match
// anything; an attribute a rule names but the caller omits rejects.
func (r Rules) Matches(attributes map[string]any) bool {
	for attr, pred := range r {
		value, present := attributes[attr]
		if !present {
			return false
		}
		if !pred.Matches(value) {
			return false
		}
	}
	return true
}

// looseEqual compares attribute values the way decoded JSON delivers them:
// numerics compare numerically regardless of concrete type, everything else
// by deep equality.
func looseEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// versionTuple parses a value as a dotted version: split on '.', keep the
// maximal leading run of all-digit tokens as integers. "1.2.beta" parses to
// [1 2]; a value with no leading digit token parses to an empty tuple.
func versionTuple(v any) []int {
	parts := strings.Split(strings.TrimSpace(fmt.Sprint(v)), ".")
	nums := make([]int, 0, len(parts))
	for _, part := range parts {
		if !allDigits(part) {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		nums = append(nums, n)
	}
	return nums
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// compareVersionValues compares two values as version tuples, zero-padding
// the shorter side.
func compareVersionValues(a, b any) int {
	ta, tb := versionTuple(a), versionTuple(b)
	for len(ta) < len(tb) {
		ta = append(ta, 0)
	}
	for len(tb) < len(ta) {
		tb = append(tb, 0)
	}
	for i := range ta {
		switch {
		case ta[i] < tb[i]:
			return -1
		case ta[i] > tb[i]:
			return 1
		}
	}
	return 0
}
