// Package strata is the composition root of a driver-agnostic data-access
// layer.
//
// Applications declare models once, register one or more drivers (in-memory,
// filesystem, remote HTTP) and run CRUD actions that return a uniform
// Response. On top of the actions sit the composables of pkg/composable,
// which keep per-call state, apply optimistic changes and write results into
// a shared reactive store.
//
// Layers:
//
//   - pkg/core: models, keys, filters, the Driver contract and the Response envelope.
//   - pkg/config: the configuration context and its precedence chain.
//   - pkg/query and pkg/scope: query translation and scope resolution.
//   - pkg/actions: the stateless actions, routed through pkg/registry.
//   - pkg/store and pkg/composable: reactive state.
//   - pkg/adapters: memory, fs and rest drivers.
//
// Usage:
//
//	rt, err := strata.New(
//		strata.WithConfigFile("strata.yaml"),
//		strata.WithLogger(logger),
//	)
//
//	posts, _ := rt.Model("posts")
//	resp, err := rt.Find(ctx, posts, 1, core.Options{With: core.With{"comments": true}})
package strata
