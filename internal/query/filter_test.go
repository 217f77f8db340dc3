package query

import (
	"encoding/json"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uid = "2f0c8a9e-5b6d-4c3e-9f1a-7d8e6b5a4c3d"

func TestCompileEmptyDocument(t *testing.T) {
	p := Compile(uid, nil)

	assert.Equal(t, "WHERE user_id = $1", p.Where())
	assert.Equal(t, []any{uid}, p.Args())
	assert.Equal(t, 2, p.NextPlaceholder())
}

func TestCompileTenantScopeAlwaysFirst(t *testing.T) {
	// A filter document cannot override or displace the tenant clause, even
	// when it names user_id itself.
	p := Compile(uid, Filters{
		"user_id": {Operator: "equals", Value: "someone-else"},
		"score":   {Operator: "gt", Value: 50.0},
	})

	assert.Equal(t, "WHERE user_id = $1 AND score > $2", p.Where())
	assert.Equal(t, []any{uid, 50.0}, p.Args())
}

func TestCompileUnknownFieldIgnored(t *testing.T) {
	with := Compile(uid, Filters{
		"favorite_color": {Operator: "equals", Value: "blue"},
		"status":         {Operator: "equals", Value: "new"},
	})
	without := Compile(uid, Filters{
		"status": {Operator: "equals", Value: "new"},
	})

	assert.Equal(t, without.Where(), with.Where())
	assert.Equal(t, without.Args(), with.Args())
}

func TestCompileUnknownOperatorIgnored(t *testing.T) {
	p := Compile(uid, Filters{
		"email": {Operator: "regex", Value: ".*@acme.com"},
	})

	assert.Equal(t, "WHERE user_id = $1", p.Where())
}

func TestCompileTextOperators(t *testing.T) {
	p := Compile(uid, Filters{
		"email": {Operator: "equals", Value: "ana@acme.com"},
	})
	assert.Equal(t, "WHERE user_id = $1 AND email = $2", p.Where())
	assert.Equal(t, []any{uid, "ana@acme.com"}, p.Args())

	p = Compile(uid, Filters{
		"company": {Operator: "contains", Value: "acme"},
	})
	assert.Equal(t, "WHERE user_id = $1 AND company ILIKE $2", p.Where())
	assert.Equal(t, []any{uid, "%acme%"}, p.Args())
}

func TestCompileContainsEscapesWildcards(t *testing.T) {
	p := Compile(uid, Filters{
		"company": {Operator: "contains", Value: "50%_off"},
	})

	require.Len(t, p.Args(), 2)
	assert.Equal(t, `%50\%\_off%`, p.Args()[1])
}

func TestCompileEnumIn(t *testing.T) {
	p := Compile(uid, Filters{
		"status": {Operator: "in", Value: []any{"new", "won"}},
	})

	assert.Equal(t, "WHERE user_id = $1 AND status = ANY($2)", p.Where())
	require.Len(t, p.Args(), 2)
	assert.Equal(t, pq.Array([]string{"new", "won"}), p.Args()[1])
}

func TestCompileEnumInNonListIgnored(t *testing.T) {
	p := Compile(uid, Filters{
		"source": {Operator: "in", Value: "website"},
	})
	assert.Equal(t, "WHERE user_id = $1", p.Where())

	p = Compile(uid, Filters{
		"source": {Operator: "in", Value: []any{"website", 7.0}},
	})
	assert.Equal(t, "WHERE user_id = $1", p.Where())
}

func TestCompileNumericOperators(t *testing.T) {
	cases := []struct {
		op     string
		value  any
		clause string
		args   []any
	}{
		{"equals", 42.0, "score = $2", []any{uid, 42.0}},
		{"gt", 70.0, "score > $2", []any{uid, 70.0}},
		{"lt", 30.0, "score < $2", []any{uid, 30.0}},
		{"between", []any{10.0, 90.0}, "score BETWEEN $2 AND $3", []any{uid, 10.0, 90.0}},
	}
	for _, tc := range cases {
		p := Compile(uid, Filters{"score": {Operator: tc.op, Value: tc.value}})
		assert.Equal(t, "WHERE user_id = $1 AND "+tc.clause, p.Where(), tc.op)
		assert.Equal(t, tc.args, p.Args(), tc.op)
	}
}

func TestCompileMalformedBetweenIgnored(t *testing.T) {
	for _, v := range []any{
		[]any{10.0},
		[]any{10.0, 20.0, 30.0},
		[]any{},
		"10,20",
		[]any{"10", 20.0},
	} {
		p := Compile(uid, Filters{"lead_value": {Operator: "between", Value: v}})
		assert.Equal(t, "WHERE user_id = $1", p.Where())
		assert.Equal(t, []any{uid}, p.Args())
	}
}

func TestCompileTemporalOperators(t *testing.T) {
	p := Compile(uid, Filters{
		"created_at": {Operator: "on", Value: "2026-03-01"},
	})
	assert.Equal(t, "WHERE user_id = $1 AND created_at::date = $2::date", p.Where())

	p = Compile(uid, Filters{
		"last_activity_at": {Operator: "before", Value: "2026-03-01T00:00:00Z"},
	})
	assert.Equal(t, "WHERE user_id = $1 AND last_activity_at < $2", p.Where())

	p = Compile(uid, Filters{
		"created_at": {Operator: "after", Value: "2026-01-01"},
	})
	assert.Equal(t, "WHERE user_id = $1 AND created_at > $2", p.Where())

	p = Compile(uid, Filters{
		"created_at": {Operator: "between", Value: []any{"2026-01-01", "2026-02-01"}},
	})
	assert.Equal(t, "WHERE user_id = $1 AND created_at BETWEEN $2 AND $3", p.Where())
	assert.Equal(t, []any{uid, "2026-01-01", "2026-02-01"}, p.Args())
}

func TestCompileBooleanPresence(t *testing.T) {
	// Presence of the key adds the clause even when the value is false.
	p := Compile(uid, Filters{
		"is_qualified": {Value: false},
	})
	assert.Equal(t, "WHERE user_id = $1 AND is_qualified = $2", p.Where())
	assert.Equal(t, []any{uid, false}, p.Args())

	p = Compile(uid, Filters{
		"is_qualified": {Operator: "equals", Value: true},
	})
	assert.Equal(t, []any{uid, true}, p.Args())
}

func TestCompilePlaceholderOrderMatchesArgs(t *testing.T) {
	p := Compile(uid, Filters{
		"email":      {Operator: "contains", Value: "ana"},
		"status":     {Operator: "equals", Value: "qualified"},
		"score":      {Operator: "between", Value: []any{40.0, 80.0}},
		"created_at": {Operator: "after", Value: "2026-01-01"},
	})

	assert.Equal(t,
		"WHERE user_id = $1 AND email ILIKE $2 AND status = $3 AND score BETWEEN $4 AND $5 AND created_at > $6",
		p.Where())
	assert.Equal(t, []any{uid, "%ana%", "qualified", 40.0, 80.0, "2026-01-01"}, p.Args())
	assert.Equal(t, 7, p.NextPlaceholder())
}

func TestCompileFromDecodedJSON(t *testing.T) {
	// Values arrive as float64 and []any when the document is decoded off the
	// wire; the compiler must handle exactly that shape.
	raw := `{
		"source": {"operator": "in", "value": ["website", "referral"]},
		"score": {"operator": "between", "value": [10, 90]},
		"is_qualified": {"operator": "equals", "value": false},
		"nonsense": {"operator": "equals", "value": 1}
	}`
	var f Filters
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	p := Compile(uid, f)
	assert.Equal(t,
		"WHERE user_id = $1 AND source = ANY($2) AND score BETWEEN $3 AND $4 AND is_qualified = $5",
		p.Where())
	assert.Equal(t, []any{uid, pq.Array([]string{"website", "referral"}), 10.0, 90.0, false}, p.Args())
}

func TestArgsIsACopy(t *testing.T) {
	p := Compile(uid, Filters{"status": {Operator: "equals", Value: "new"}})
	args := p.Args()
	args[0] = "mutated"
	assert.Equal(t, uid, p.Args()[0])
}
