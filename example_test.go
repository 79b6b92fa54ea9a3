package strata_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/composable"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Example_basic registers an in-memory driver, creates a record and reads it back.
func Example_basic() {
	schema := core.NewSchema(&core.Model{Entity: "notes"})
	rt, err := strata.New(
		strata.WithSchema(schema),
		strata.WithDriver("memory", memory.NewDriver(store.New(schema), local.Config{Schema: schema})),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	notes, _ := rt.Model("notes")

	if _, err := rt.Create(ctx, notes, core.Form{"id": "hello", "title": "Hello World"}, core.Options{}); err != nil {
		log.Fatal(err)
	}

	resp, err := rt.Find(ctx, notes, "hello", core.Options{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.Success, resp.Record["title"])

	resp, _ = rt.Find(ctx, notes, "missing", core.Options{})
	fmt.Println(resp.Success, resp.StandardErrors[0].Name)

	// Output:
	// true Hello World
	// false not found
}

// Example_composable drives an Indexer over two pages.
func Example_composable() {
	schema := core.NewSchema(&core.Model{Entity: "notes"})
	backend := store.New(schema)
	notes, _ := schema.Model("notes")
	for i := 1; i <= 5; i++ {
		_, _ = backend.Repo(notes).Insert(core.Record{"id": i, "title": fmt.Sprintf("note %d", i)})
	}

	inst, err := strata.Open(context.Background(),
		strata.WithSchema(schema),
		strata.WithDriver("memory", memory.NewDriver(backend, local.Config{Schema: schema})),
	)
	if err != nil {
		log.Fatal(err)
	}

	ix := composable.NewIndexer(inst.Runtime, notes, inst.Store,
		composable.WithCallOptions(core.Options{Pagination: &core.Pagination{RecordsPerPage: 3}}),
	)
	ctx := context.Background()
	_, _ = ix.Index(ctx)
	_, _ = ix.Next(ctx)
	fmt.Println(ix.Page(), ix.PagesCount(), len(ix.Records()), inst.Store.Repo(notes).Count())

	// Output:
	// 2 2 2 5
}
