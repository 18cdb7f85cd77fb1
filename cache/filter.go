package cache

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FilterSet is the filter sent to the backend with a list request
type FilterSet struct {
	LocationID int64  `json:"location_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Active     *bool  `json:"active,omitempty"`
	Search     string `json:"search,omitempty"`
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
}

// Scope returns the scope dimensions of f, nil when f is unscoped
func (f FilterSet) Scope() *Scope {
	if f.LocationID == 0 && f.UserID == 0 {
		return nil
	}
	return &Scope{LocationID: f.LocationID, UserID: f.UserID}
}

// Criteria selects items of the cached list.
// Zero fields match everything; set fields are combined with AND.
type Criteria struct {
	// LocationID keeps Scoped items of this location
	LocationID int64
	// UserID keeps Scoped items of this user
	UserID int64
	// Active keeps Activatable items with this flag
	Active *bool
	// Search keeps Searchable items with a field containing it, case-insensitively
	Search string
	// Expr is a boolean expr-lang expression evaluated with the item as environment,
	// e.g. `capacity >= 10 && name startsWith "Main"`
	Expr string
}

// matcher is a compiled Criteria
type matcher struct {
	c       Criteria
	search  string
	program *vm.Program
}

func compileCriteria[T any](c Criteria) (*matcher, error) {
	m := &matcher{c: c, search: strings.ToLower(strings.TrimSpace(c.Search))}
	if c.Expr != "" {
		var zero T
		program, err := expr.Compile(c.Expr, expr.Env(zero), expr.AsBool())
		if err != nil {
			return nil, ErrInvalidExpr(c.Expr, err)
		}
		m.program = program
	}
	return m, nil
}

func (m *matcher) match(item any) (bool, error) {
	if m.c.LocationID != 0 || m.c.UserID != 0 {
		s, ok := item.(Scoped)
		if !ok {
			return false, nil
		}
		if m.c.LocationID != 0 && s.ScopeLocationID() != m.c.LocationID {
			return false, nil
		}
		if m.c.UserID != 0 && s.ScopeUserID() != m.c.UserID {
			return false, nil
		}
	}
	if m.c.Active != nil {
		a, ok := item.(Activatable)
		if !ok || a.IsActive() != *m.c.Active {
			return false, nil
		}
	}
	if m.search != "" {
		s, ok := item.(Searchable)
		if !ok || !containsFold(s.SearchFields(), m.search) {
			return false, nil
		}
	}
	if m.program != nil {
		out, err := expr.Run(m.program, item)
		if err != nil {
			return false, ErrInvalidExpr(m.c.Expr, err)
		}
		if ok, _ := out.(bool); !ok {
			return false, nil
		}
	}
	return true, nil
}

// containsFold reports whether any field contains the lower-cased needle
func containsFold(fields []string, needle string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
