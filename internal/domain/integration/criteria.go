package integration

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Criteria
// ---------------------------------------------------------------------------

// Condition is a filter operator.
type Condition string

const (
	ConditionEq Condition = "eq"
	ConditionIn Condition = "in"
)

// Filter is a field/condition/values triple. Values are ORed.
type Filter struct {
	Field     string
	Condition Condition
	Values    []string
}

// Eq builds an equality filter
func Eq(field, value string) Filter {
	return Filter{Field: field, Condition: ConditionEq, Values: []string{value}}
}

// In builds a membership filter
func In(field string, values ...string) Filter {
	return Filter{Field: field, Condition: ConditionIn, Values: values}
}

// StatusIn filters on sync status
func StatusIn(statuses ...SyncStatus) Filter {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return In("sync_status", values...)
}

// FilterGroup is a set of filters that are ORed together.
type FilterGroup []Filter

// Criteria selects one page of a collection. Groups are ANDed.
type Criteria struct {
	PageNumber int
	PageSize   int
	Groups     []FilterGroup
	OrderBy    string
	OrderDir   string

	// SyncedBefore, when set, keeps rows never synced or last synced
	// before it. Staging stores only.
	SyncedBefore time.Time
}

// NewCriteria creates criteria for page number of size, every filter in its
// own group
func NewCriteria(pageNumber, pageSize int, filters ...Filter) Criteria {
	c := Criteria{PageNumber: pageNumber, PageSize: pageSize}
	for _, f := range filters {
		c.Groups = append(c.Groups, FilterGroup{f})
	}
	return c.Normalize()
}

// And appends a filter in a new group
func (c Criteria) And(filters ...Filter) Criteria {
	groups := append([]FilterGroup(nil), c.Groups...)
	if len(filters) > 0 {
		groups = append(groups, FilterGroup(filters))
	}
	c.Groups = groups
	return c
}

// NotSyncedSince restricts the criteria to rows not synced at or after t
func (c Criteria) NotSyncedSince(t time.Time) Criteria {
	c.SyncedBefore = t
	return c
}

// Offset returns the row offset of the page
func (c Criteria) Offset() int {
	return (c.PageNumber - 1) * c.PageSize
}

// Normalize clamps page number and size to their minimum of 1
func (c Criteria) Normalize() Criteria {
	if c.PageNumber < 1 {
		c.PageNumber = 1
	}
	if c.PageSize < 1 {
		c.PageSize = 1
	}
	return c
}

// SplitValues splits a comma separated value list, dropping empty parts.
func SplitValues(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Page is one page of a collection with the total matching count.
type Page[T any] struct {
	Items      []T
	TotalCount int64
}

// Len returns the number of items on the page
func (p Page[T]) Len() int {
	return len(p.Items)
}

// CommerceQuery encodes the criteria as commerce REST searchCriteria
// parameters, e.g. searchCriteria[filter_groups][0][filters][0][field].
// Filters of one group are ORed by the platform and groups are ANDed,
// matching the Criteria semantics. Multiple values use the "in" condition.
func (c Criteria) CommerceQuery() url.Values {
	q := url.Values{}
	for gi, group := range c.Groups {
		for fi, f := range group {
			prefix := fmt.Sprintf("searchCriteria[filter_groups][%d][filters][%d]", gi, fi)
			cond := f.Condition
			if cond == ConditionEq && len(f.Values) > 1 {
				cond = ConditionIn
			}
			q.Set(prefix+"[field]", f.Field)
			q.Set(prefix+"[value]", strings.Join(f.Values, ","))
			q.Set(prefix+"[condition_type]", string(cond))
		}
	}
	if c.PageSize > 0 {
		q.Set("searchCriteria[pageSize]", strconv.Itoa(c.PageSize))
	}
	if c.PageNumber > 0 {
		q.Set("searchCriteria[currentPage]", strconv.Itoa(c.PageNumber))
	}
	if c.OrderBy != "" {
		dir := strings.ToUpper(c.OrderDir)
		if dir != "DESC" {
			dir = "ASC"
		}
		q.Set("searchCriteria[sortOrders][0][field]", c.OrderBy)
		q.Set("searchCriteria[sortOrders][0][direction]", dir)
	}
	return q
}
