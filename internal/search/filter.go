package search

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// Predicate is a boolean metadata filter in the index's native grammar:
// Mongo query operators, as evaluated by Atlas $vectorSearch filters.
type Predicate = bson.M

// Eq matches documents whose field equals v.
func Eq(field string, v interface{}) Predicate {
	return bson.M{field: bson.M{"$eq": v}}
}

// Ne matches documents whose field does not equal v.
func Ne(field string, v interface{}) Predicate {
	return bson.M{field: bson.M{"$ne": v}}
}

// Gte matches documents whose field is >= v.
func Gte(field string, v interface{}) Predicate {
	return bson.M{field: bson.M{"$gte": v}}
}

// Lte matches documents whose field is <= v.
func Lte(field string, v interface{}) Predicate {
	return bson.M{field: bson.M{"$lte": v}}
}

// In matches documents whose field equals any element of values.
func In(field string, values interface{}) Predicate {
	return bson.M{field: bson.M{"$in": values}}
}

// And conjoins predicates. A single clause is returned unwrapped rather than
// inside a redundant $and.
func And(preds ...Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return bson.M{"$and": preds}
}

// Or disjoins predicates.
func Or(preds ...Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return bson.M{"$or": preds}
}

// Canonical contribution labels the index can filter on via boolean fields.
// Every other label string has to be matched in-process against the record's
// raw label set, because the filter grammar has no array-contains operator.
const (
	LabelGoodFirstIssue = "good first issue"
	LabelHelpWanted     = "help wanted"
)

// Compile translates a parsed query into an index predicate. Administrative
// records (type == "stats") are always excluded. Topics are never compiled;
// they are post-filtered over the retrieved candidate window.
func Compile(parsed models.ParsedQuery, now time.Time) Predicate {
	conds := []Predicate{Ne("type", "stats")}

	if parsed.Language != "" {
		conds = append(conds, Eq("language", parsed.Language))
	}

	if parsed.MinStars > 0 {
		conds = append(conds, Gte("repo_stars", parsed.MinStars))
	}
	if parsed.MaxStars > 0 {
		conds = append(conds, Lte("repo_stars", parsed.MaxStars))
	}

	for _, label := range parsed.Labels {
		switch strings.ToLower(label) {
		case LabelGoodFirstIssue:
			conds = append(conds, Eq("is_good_first_issue", true))
		case LabelHelpWanted:
			conds = append(conds, Eq("is_help_wanted", true))
		}
	}

	if parsed.UnassignedOnly {
		conds = append(conds, Eq("is_assigned", false))
	}

	if parsed.DaysAgo > 0 {
		conds = append(conds, Gte("updated_at_ts", daysAgoCutoff(now, parsed.DaysAgo)))
	}

	// Only "beginner" has a defined mapping; other difficulty values add no
	// clause until the parser starts emitting label vocabularies for them.
	if parsed.Difficulty == models.DifficultyBeginner {
		conds = append(conds, Or(
			Eq("is_good_first_issue", true),
			Eq("is_help_wanted", true),
		))
	}

	return And(conds...)
}

// UncompiledLabels returns the requested labels that have no boolean field
// in the index and so must be checked against the raw label set.
func UncompiledLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		switch strings.ToLower(l) {
		case LabelGoodFirstIssue, LabelHelpWanted:
		default:
			out = append(out, l)
		}
	}
	return out
}

func daysAgoCutoff(now time.Time, days float64) int64 {
	return now.Add(-time.Duration(days * 24 * float64(time.Hour))).Unix()
}
