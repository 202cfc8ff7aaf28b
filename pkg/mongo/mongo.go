// Package mongo holds the low-level BSON patch-building helpers the document
// state transaction uses to turn a partial update into a MongoDB $set/$unset
// pair, plus flattening helpers shared by nested-path handling.
package mongo

import (
	"strings"

	"github.com/iancoleman/strcase"
	"go.mongodb.org/mongo-driver/bson"
)

// BuildDocumentToPatch turns a (possibly nested) partial update document and
// a list of dotted field paths to remove into a MongoDB update document with
// $set and $unset keyed by dot-notation paths.
//
// Fields under the metadata namespace keep their original dotted path in
// $unset (metadata keys are caller-chosen, not declared columns); every
// other removed field is snake_cased for $unset's key, with the original
// dotted path kept as the value so callers can recover what was requested.
func BuildDocumentToPatch(updateDocument bson.M, fieldsToRemove []string) bson.M {
	result := bson.M{}

	flat := bson.M{}
	flattenBSONM(updateDocument, "", flat)

	setDoc := bson.M{}

	for k, v := range flat {
		if shouldUnset(k, fieldsToRemove) {
			continue
		}

		setDoc[k] = v
	}

	if len(setDoc) > 0 {
		result["$set"] = setDoc
	}

	if len(fieldsToRemove) > 0 {
		unsetDoc := bson.M{}

		for _, f := range fieldsToRemove {
			if f == "metadata" || strings.HasPrefix(f, "metadata.") {
				unsetDoc[f] = ""
				continue
			}

			unsetDoc[snakeCaseDotted(f)] = f
		}

		result["$unset"] = unsetDoc
	}

	return result
}

// flattenBSONM recursively flattens input into result using dot-notation
// keys, prefixing every key with prefix when set.
func flattenBSONM(input bson.M, prefix string, result bson.M) {
	for k, v := range input {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(bson.M); ok {
			flattenBSONM(nested, key, result)
			continue
		}

		result[key] = v
	}
}

// shouldUnset reports whether key is, or is nested under, one of fieldsToRemove.
func shouldUnset(key string, fieldsToRemove []string) bool {
	for _, f := range fieldsToRemove {
		if key == f || strings.HasPrefix(key, f+".") {
			return true
		}
	}

	return false
}

func snakeCaseDotted(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = strcase.ToSnake(p)
	}

	return strings.Join(parts, ".")
}
