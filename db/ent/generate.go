//go:build ignore

// Generates a typed Ent client from db/ent/schema into gen/ent:
//
//	go run ./db/ent/generate.go
//
// The services query through internal/repository with Ent's SQL builder, so
// the generated client is optional tooling for ad-hoc scripts.
package main

import (
	"log"

	"entgo.io/ent/entc"
	"entgo.io/ent/entc/gen"
)

func main() {
	err := entc.Generate(
		"./db/ent/schema",
		&gen.Config{
			Target:   "gen/ent",
			Package:  "github.com/joseph-ayodele/labreports/gen/ent",
			Features: []gen.Feature{gen.FeatureUpsert},
		},
	)
	if err != nil {
		log.Fatal(err)
	}
}
