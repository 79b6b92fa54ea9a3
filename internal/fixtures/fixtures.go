// Package fixtures provides the seeded models and records shared by tests.
package fixtures

import (
	"context"
	"fmt"

	"github.com/aretw0/strata/pkg/core"
)

// Schema returns a fresh schema declaring users, posts, comments, photos,
// tags and the photo_tag pivot keyed by [photo_id, tag_id].
func Schema() *core.Schema {
	return core.NewSchema(
		&core.Model{
			Entity:     "users",
			Attributes: []string{"id", "name", "email", "age"},
			Relations: map[string]core.Relation{
				"posts": {Kind: core.HasMany, Related: "posts", ForeignKey: "user_id"},
			},
		},
		&core.Model{
			Entity:     "posts",
			Attributes: []string{"id", "user_id", "title", "body"},
			Relations: map[string]core.Relation{
				"user":     {Kind: core.BelongsTo, Related: "users", ForeignKey: "user_id"},
				"comments": {Kind: core.HasMany, Related: "comments", ForeignKey: "post_id"},
			},
		},
		&core.Model{
			Entity:     "comments",
			Attributes: []string{"id", "post_id", "email", "body"},
			Relations: map[string]core.Relation{
				"post": {Kind: core.BelongsTo, Related: "posts", ForeignKey: "post_id"},
			},
		},
		&core.Model{
			Entity:     "photos",
			Attributes: []string{"id", "title"},
			Relations: map[string]core.Relation{
				"tags": {
					Kind:            core.BelongsToMany,
					Related:         "tags",
					Pivot:           "photo_tag",
					ForeignPivotKey: "photo_id",
					RelatedPivotKey: "tag_id",
				},
			},
		},
		&core.Model{
			Entity:     "tags",
			Attributes: []string{"id", "name"},
		},
		&core.Model{
			Entity:     "photo_tag",
			PrimaryKey: []string{"photo_id", "tag_id"},
			Attributes: []string{"photo_id", "tag_id", "primary"},
		},
	)
}

var titles = []string{
	"sunt aut facere repellat provident occaecati excepturi optio reprehenderit",
	"qui est esse",
	"ea molestias quasi exercitationem repellat qui ipsa sit aut",
	"eum et est occaecati",
	"nesciunt quas odio",
	"dolorem eum magni eos aperiam quia",
	"magnam facilis autem",
	"dolorem dolore est ipsam",
	"nesciunt iure omnis dolorem tempora et accusantium",
	"optio molestias id quia eum",
}

// Posts returns ten posts with ids 1 to 10 written by users 1 and 2.
func Posts() []core.Record {
	out := make([]core.Record, len(titles))
	for i, title := range titles {
		out[i] = core.Record{
			"id":      i + 1,
			"user_id": i%2 + 1,
			"title":   title,
			"body":    fmt.Sprintf("body of post %d", i+1),
		}
	}
	return out
}

// Ages holds the ages of users 1 to 10.
var Ages = []int{25, 31, 42, 55, 56, 29, 30, 61, 38, 47}

// Users returns ten users aged as in Ages.
func Users() []core.Record {
	out := make([]core.Record, len(Ages))
	for i, age := range Ages {
		out[i] = core.Record{
			"id":    i + 1,
			"name":  fmt.Sprintf("user %d", i+1),
			"email": fmt.Sprintf("user%d@example.com", i+1),
			"age":   age,
		}
	}
	return out
}

// CountAgesBetween counts users whose age lies within [lo, hi].
func CountAgesBetween(lo, hi int) int {
	n := 0
	for _, a := range Ages {
		if a >= lo && a <= hi {
			n++
		}
	}
	return n
}

// Comments returns six comments spread over posts 1 to 4.
func Comments() []core.Record {
	postIDs := []int{1, 1, 2, 2, 3, 4}
	out := make([]core.Record, len(postIDs))
	for i, post := range postIDs {
		out[i] = core.Record{
			"id":      i + 1,
			"post_id": post,
			"email":   fmt.Sprintf("reader%d@example.com", i+1),
			"body":    fmt.Sprintf("comment %d on post %d", i+1, post),
		}
	}
	return out
}

// Photos returns two photos.
func Photos() []core.Record {
	return []core.Record{
		{"id": 1, "title": "harbour"},
		{"id": 2, "title": "mountain"},
	}
}

// Tags returns three tags.
func Tags() []core.Record {
	return []core.Record{
		{"id": 1, "name": "sea"},
		{"id": 2, "name": "sky"},
		{"id": 3, "name": "rock"},
	}
}

// PhotoTags links photo 1 to tags 1 and 2, and photo 2 to tag 3.
func PhotoTags() []core.Record {
	return []core.Record{
		{"photo_id": 1, "tag_id": 1, "primary": true},
		{"photo_id": 1, "tag_id": 2, "primary": false},
		{"photo_id": 2, "tag_id": 3, "primary": true},
	}
}

// Records returns every fixture keyed by entity.
func Records() map[string][]core.Record {
	return map[string][]core.Record{
		"users":     Users(),
		"posts":     Posts(),
		"comments":  Comments(),
		"photos":    Photos(),
		"tags":      Tags(),
		"photo_tag": PhotoTags(),
	}
}

// Source serves fixture records by entity, for query evaluation.
func Source(_ context.Context, entity string) ([]core.Record, error) {
	return Records()[entity], nil
}

// Seed saves every fixture into repo.
func Seed(ctx context.Context, schema *core.Schema, repo core.Repository) error {
	for entity, records := range Records() {
		m, ok := schema.Model(entity)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownModel, entity)
		}
		for _, rec := range records {
			key, err := core.KeyOf(m, rec)
			if err != nil {
				return err
			}
			if err := repo.Save(ctx, m, key, rec); err != nil {
				return fmt.Errorf("seed %s/%s: %w", entity, key, err)
			}
		}
	}
	return nil
}
