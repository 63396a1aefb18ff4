// Package policy decides which caller roles may invoke which operations.
// Handlers call Check explicitly before touching the lifecycle core.
package policy

import (
	"strings"

	"tarkostock/internal/apierror"
)

// Operation names a request-level action subject to policy.
type Operation string

const (
	OpProduce       Operation = "produce"
	OpCut           Operation = "cut"
	OpSplitBundle   Operation = "split_bundle"
	OpCombineSpares Operation = "combine_spares"
	OpDispatch      Operation = "dispatch"
	OpScrap         Operation = "scrap"
	OpRevert        Operation = "revert"
	OpReadLedger    Operation = "read_ledger"
	OpReadStock     Operation = "read_stock"
	OpValidate      Operation = "validate"
	OpSweep         Operation = "sweep"
)

// Roles.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
	RoleAuditor    = "auditor"
)

var grants = map[string]map[Operation]bool{
	RoleOperator: set(
		OpProduce, OpCut, OpSplitBundle, OpCombineSpares, OpDispatch,
		OpReadLedger, OpReadStock,
	),
	RoleSupervisor: set(
		OpProduce, OpCut, OpSplitBundle, OpCombineSpares, OpDispatch, OpScrap, OpRevert,
		OpReadLedger, OpReadStock, OpValidate,
	),
	RoleAdmin: set(
		OpProduce, OpCut, OpSplitBundle, OpCombineSpares, OpDispatch, OpScrap, OpRevert,
		OpReadLedger, OpReadStock, OpValidate, OpSweep,
	),
	RoleAuditor: set(OpReadLedger, OpReadStock, OpValidate),
}

func set(ops ...Operation) map[Operation]bool {
	m := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// Check returns a forbidden error unless role may perform op.
// Role matching is case-insensitive; an empty role is never granted anything.
func Check(role string, op Operation) error {
	r := strings.ToLower(strings.TrimSpace(role))
	if grants[r][op] {
		return nil
	}
	if r == "" {
		return apierror.Forbidden(string(op), "actor role is required")
	}
	return apierror.Forbidden(string(op), "role is not allowed to perform this operation").
		With("role", r).
		With("operation", string(op))
}

// Allowed lists the operations granted to role, mostly for diagnostics.
func Allowed(role string) []Operation {
	var out []Operation
	for _, op := range []Operation{
		OpProduce, OpCut, OpSplitBundle, OpCombineSpares, OpDispatch, OpScrap, OpRevert,
		OpReadLedger, OpReadStock, OpValidate, OpSweep,
	} {
		if grants[strings.ToLower(role)][op] {
			out = append(out, op)
		}
	}
	return out
}
