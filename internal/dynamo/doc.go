// Package dynamo provides the core primitives shared by the solver, the
// example units and the simulation driver.
//
// The package defines:
//
//   - [State] and [Flux]: numeric sequences with their stage and method buffers
//   - [Sequences]: the ordered set of states and fluxes declared by a unit
//   - [Term] and [Methods]: the partial and full right-hand-side terms of a unit
//   - [Model]: the contract every lumped unit fulfils
//   - [Context]: solver tolerances and the current simulation index
//   - [Report]: per-step solver diagnostics
//
// # Example
//
//	unit := models.NewLinear(0.5, 1.0, nil)
//	solver, _ := integrators.NewELS(unit, tableau.Default())
//	ctx := dynamo.DefaultContext()
//	report, err := solver.Solve(ctx)
//
// # Thread Safety
//
// Models, sequences and solvers are NOT thread-safe. Independent units may
// be solved concurrently, one model and solver per goroutine; use
// [Ensemble] to fan them out.
package dynamo
