package sqlstore

import (
	"strings"

	"github.com/platinummonkey/catalog/pkg/filter"
)

// columns maps predicate field names to SQL columns
type columns map[string]string

var metadataColumns = columns{
	"apiId":            "api_id",
	"apiVersion":       "api_version",
	"name":             "name",
	"systemIdentifier": "system_identifier",
	"description":      "description",
	"visibility":       "visibility",
	"status":           "status",
	"businessUnit":     "business_unit",
	"apiType":          "api_type",
	"lifecycle":        "lifecycle",
	"ownerTeam":        "owner_team",
}

var linkColumns = columns{
	"apiId":           "api_id",
	"apiVersion":      "api_version",
	"taxonomyUrn":     "taxonomy_urn",
	"taxonomyNid":     "taxonomy_nid",
	"taxonomyVersion": "taxonomy_version",
}

// where renders a predicate as a SQL condition with ? placeholders.
// Fields without a column render as a false condition, matching
// Predicate.Match on records lacking the field.
func (d Dialect) where(p filter.Predicate, cols columns) (string, []interface{}) {
	switch p.Op {
	case filter.OpTrue:
		return "1 = 1", nil
	case filter.OpFalse:
		return "1 = 0", nil
	}

	if p.Op == filter.OpAnd || p.Op == filter.OpOr {
		sep := " AND "
		if p.Op == filter.OpOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(p.Children))
		var args []interface{}
		for _, c := range p.Children {
			sql, a := d.where(c, cols)
			parts = append(parts, sql)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, sep) + ")", args
	}

	col, ok := cols[p.Field]
	if !ok {
		return "1 = 0", nil
	}
	switch p.Op {
	case filter.OpEq:
		return col + " = ?", []interface{}{p.Values[0]}
	case filter.OpIn:
		return d.inList(col, p.Values)
	case filter.OpContainsAll:
		return d.lower + "(" + col + `) LIKE ? ESCAPE '\'`, []interface{}{filter.LikePattern(p.Values)}
	}
	return "1 = 0", nil
}
