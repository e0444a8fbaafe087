package rate

import "time"

// Operation is a closed set of rate-limited call classes.
type Operation uint8

const (
	// OpAPI covers generic API calls.
	OpAPI Operation = iota
	// OpCreate covers record creation.
	OpCreate
	// OpSearch covers search queries.
	OpSearch
	// OpExport covers export jobs.
	OpExport
	// OpNotify covers notification sends.
	OpNotify
	operationCount
)

var operationNames = [operationCount]string{
	OpAPI:    "api",
	OpCreate: "create",
	OpSearch: "search",
	OpExport: "export",
	OpNotify: "notification",
}

// Operations lists every operation in table order.
func Operations() []Operation {
	out := make([]Operation, 0, operationCount)
	for op := Operation(0); op < operationCount; op++ {
		out = append(out, op)
	}
	return out
}

// Valid reports whether op is part of the table.
func (op Operation) Valid() bool {
	return op < operationCount
}

func (op Operation) String() string {
	if !op.Valid() {
		return "unknown"
	}
	return operationNames[op]
}

// ParseOperation maps a name back to its Operation.
func ParseOperation(name string) (Operation, bool) {
	for op := Operation(0); op < operationCount; op++ {
		if operationNames[op] == name {
			return op, true
		}
	}
	return 0, false
}

// Policy is the window size and ceiling for one operation.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Policies is indexed by Operation, so every operation always has an entry.
type Policies [operationCount]Policy

// DefaultPolicies returns the stock ceilings.
func DefaultPolicies() Policies {
	return Policies{
		OpAPI:    {Window: time.Minute, MaxRequests: 100},
		OpCreate: {Window: time.Minute, MaxRequests: 10},
		OpSearch: {Window: time.Minute, MaxRequests: 30},
		OpExport: {Window: 5 * time.Minute, MaxRequests: 5},
		OpNotify: {Window: time.Minute, MaxRequests: 20},
	}
}

// Get returns the policy for op.
func (p Policies) Get(op Operation) (Policy, bool) {
	if !op.Valid() {
		return Policy{}, false
	}
	return p[op], true
}

// Set replaces the policy for op. Unknown operations are ignored.
func (p *Policies) Set(op Operation, policy Policy) {
	if !op.Valid() {
		return
	}
	p[op] = policy
}
