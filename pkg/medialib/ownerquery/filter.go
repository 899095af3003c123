// Package ownerquery builds owner filters that stay correct across the
// schema drift the owner identifier has gone through: the field was renamed
// from user_id to owner_id, and its value has been stored both as a plain
// string and as a binary-encoded object id. Every read path matches all
// combinations so old records keep resolving without a migration gate.
package ownerquery

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field names the owner identifier has been stored under, newest first.
var ownerFields = []string{"owner_id", "user_id"}

// Filter returns a filter matching any record owned by the given logical
// owner, regardless of which physical field name and encoding the record
// uses. The binary-encoded branches are included only when the identifier is
// representable as an object id; otherwise they are dropped silently. The
// plain string branches are always present, so Filter never fails.
func Filter(ownerID string) bson.M {
	branches := make(bson.A, 0, 2*len(ownerFields))
	for _, field := range ownerFields {
		branches = append(branches, bson.M{field: ownerID})
	}

	if oid, err := primitive.ObjectIDFromHex(ownerID); err == nil {
		for _, field := range ownerFields {
			branches = append(branches, bson.M{field: oid})
		}
	}

	return bson.M{"$or": branches}
}

// Matches evaluates the tolerant-filter semantics against a raw document,
// mirroring what Filter selects server-side. It is used by in-memory
// repositories and by tests that have no database at hand.
func Matches(doc bson.M, ownerID string) bool {
	oid, oidErr := primitive.ObjectIDFromHex(ownerID)

	for _, field := range ownerFields {
		raw, ok := doc[field]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v == ownerID {
				return true
			}
		case primitive.ObjectID:
			if oidErr == nil && v == oid {
				return true
			}
		}
	}
	return false
}
