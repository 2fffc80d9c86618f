// Package query translates structured image filters into SQL against the
// images/tags schema.
//
// All constraints are conjunctive:
//
//   - IncludeTags: the image carries at least one of the tags
//   - ExcludeTags: the image carries none of the tags
//   - RequiredTags: the image carries every one of the tags
//   - Months: the month of dateTaken (1-12, UTC) is one of the values
//   - Years: the calendar year of dateTaken (UTC) is one of the values
//
// Empty sets impose no constraint. An include or required set whose entries
// are all empty matches nothing. Results are ordered by dateTaken and then
// by id, so ties keep insertion order.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"photo-tagger/internal/tags"
)

// Filter is a structured image query.
type Filter struct {
	IncludeTags  []string `json:"includeTags,omitempty"`
	ExcludeTags  []string `json:"excludeTags,omitempty"`
	RequiredTags []string `json:"requiredTags,omitempty"`
	Months       []int    `json:"months,omitempty"`
	Years        []string `json:"years,omitempty"`
}

// IsEmpty reports whether the filter has no constraints.
func (f Filter) IsEmpty() bool {
	return len(f.IncludeTags) == 0 &&
		len(f.ExcludeTags) == 0 &&
		len(f.RequiredTags) == 0 &&
		len(f.Months) == 0 &&
		len(f.Years) == 0
}

// Build returns the SELECT statement and its positional arguments.
// The statement yields id, relativePath, dateTaken.
func Build(f Filter) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT images.id, images.relativePath, images.dateTaken FROM images WHERE 1=1")

	if len(f.IncludeTags) > 0 {
		// A set that only held empty tags matches nothing.
		include := dedupe(f.IncludeTags)
		if len(include) == 0 {
			sb.WriteString(" AND 0")
		} else {
			sb.WriteString(" AND images.id IN (SELECT imageId FROM tags WHERE tag IN (")
			sb.WriteString(placeholders(len(include)))
			sb.WriteString("))")
			args = appendStrings(args, include)
		}
	}

	if exclude := dedupe(f.ExcludeTags); len(exclude) > 0 {
		sb.WriteString(" AND images.id NOT IN (SELECT imageId FROM tags WHERE tag IN (")
		sb.WriteString(placeholders(len(exclude)))
		sb.WriteString("))")
		args = appendStrings(args, exclude)
	}

	if len(f.RequiredTags) > 0 {
		required := dedupe(f.RequiredTags)
		if len(required) == 0 {
			sb.WriteString(" AND 0")
		}
		for _, tag := range required {
			sb.WriteString(" AND images.id IN (SELECT imageId FROM tags WHERE tag = ?)")
			args = append(args, tag)
		}
	}

	if len(f.Months) > 0 {
		// A set that only held invalid months matches nothing.
		months := validMonths(f.Months)
		if len(months) == 0 {
			sb.WriteString(" AND 0")
		} else {
			sb.WriteString(" AND CAST(strftime('%m', images.dateTaken) AS INTEGER) IN (")
			sb.WriteString(placeholders(len(months)))
			sb.WriteString(")")
			for _, m := range months {
				args = append(args, m)
			}
		}
	}

	if len(f.Years) > 0 {
		years := validYears(f.Years)
		if len(years) == 0 {
			sb.WriteString(" AND 0")
		} else {
			sb.WriteString(" AND strftime('%Y', images.dateTaken) IN (")
			sb.WriteString(placeholders(len(years)))
			sb.WriteString(")")
			args = appendStrings(args, years)
		}
	}

	sb.WriteString(" ORDER BY images.dateTaken ASC, images.id ASC")

	return sb.String(), args
}

// ParseFilter reads a filter from comma-separated query parameters:
// includeTags, excludeTags, requiredTags, selectedMonths (or months) and
// selectedYears (or years). Month values that are not integers are kept as
// 0 so that they match nothing; range validation belongs to the caller.
func ParseFilter(values url.Values) Filter {
	f := Filter{
		IncludeTags:  splitList(values.Get("includeTags")),
		ExcludeTags:  splitList(values.Get("excludeTags")),
		RequiredTags: splitList(values.Get("requiredTags")),
		Years:        splitList(firstNonEmpty(values.Get("selectedYears"), values.Get("years"))),
	}

	for _, m := range splitList(firstNonEmpty(values.Get("selectedMonths"), values.Get("months"))) {
		n, err := strconv.Atoi(m)
		if err != nil {
			n = 0
		}
		f.Months = append(f.Months, n)
	}

	return f
}

// NormalizeTags returns a copy of f whose tag sets are in canonical form,
// so user input such as "Beach Day" matches the stored "beach-day".
// An entry with no canonical form, such as "!!!", is kept verbatim: stored
// tags are always canonical, so it matches no image and an include or
// required set naming it still constrains the result.
func (f Filter) NormalizeTags() Filter {
	out := f
	out.IncludeTags = normalizeKeepingUnmatchable(f.IncludeTags)
	out.ExcludeTags = tags.NormalizeAll(f.ExcludeTags)
	out.RequiredTags = normalizeKeepingUnmatchable(f.RequiredTags)
	return out
}

func normalizeKeepingUnmatchable(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := tags.Normalize(r)
		if t == "" {
			t = strings.TrimSpace(r)
		}
		out = append(out, t)
	}
	if deduped := dedupe(out); len(deduped) > 0 || len(raw) == 0 {
		return deduped
	}
	// Only blank entries: keep one so Build still matches nothing.
	return []string{""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// dedupe drops empty and repeated entries, keeping order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func validMonths(months []int) []int {
	seen := make(map[int]struct{}, len(months))
	out := make([]int, 0, len(months))
	for _, m := range months {
		if m < 1 || m > 12 {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func validYears(years []string) []string {
	out := make([]string, 0, len(years))
	for _, y := range dedupe(years) {
		if len(y) != 4 {
			continue
		}
		if _, err := strconv.Atoi(y); err != nil {
			continue
		}
		out = append(out, y)
	}
	return out
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
