// Package listing holds the search and pagination state of the record list.
//
// State is a plain value: handlers decode it from the query string, recompute
// it against the current filtered snapshot and render it back into links.
package listing

import (
	"strings"

	"adquisiciones/internal/core"
)

// DefaultPageSize is used when no positive page size is configured.
const DefaultPageSize = 10

// State is the pagination and search state of the list view.
type State struct {
	CurrentPage int    `json:"paginaActual"`
	PageSize    int    `json:"tamanoPagina"`
	TotalPages  int    `json:"totalPaginas"`
	Search      string `json:"busqueda"`
}

// NewState returns a state on page 1 with the given page size.
func NewState(pageSize int) State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return State{CurrentPage: 1, PageSize: pageSize, TotalPages: 1}
}

// Recompute updates TotalPages for n filtered records. A current page that
// falls outside the new bounds goes back to 1.
func (s State) Recompute(n int) State {
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	s.TotalPages = (n + s.PageSize - 1) / s.PageSize
	if s.TotalPages < 1 {
		s.TotalPages = 1
	}
	if s.CurrentPage < 1 || s.CurrentPage > s.TotalPages {
		s.CurrentPage = 1
	}
	return s
}

// GoTo moves to page p. Pages outside [1, TotalPages] leave the state unchanged.
func (s State) GoTo(p int) State {
	if p < 1 || p > s.TotalPages {
		return s
	}
	s.CurrentPage = p
	return s
}

func (s State) HasPrev() bool { return s.CurrentPage > 1 }
func (s State) HasNext() bool { return s.CurrentPage < s.TotalPages }
func (s State) Prev() State   { return s.GoTo(s.CurrentPage - 1) }
func (s State) Next() State   { return s.GoTo(s.CurrentPage + 1) }

// Pages lists every page number, for rendering the pager.
func (s State) Pages() []int {
	pages := make([]int, s.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// Page returns the records visible on the state's current page.
// The result shares the backing array of records.
func Page(records []core.Record, s State) []core.Record {
	if s.PageSize < 1 || s.CurrentPage < 1 {
		return nil
	}
	start := (s.CurrentPage - 1) * s.PageSize
	if start >= len(records) {
		return []core.Record{}
	}
	end := start + s.PageSize
	if end > len(records) {
		end = len(records)
	}
	return records[start:end:end]
}

// Filter keeps the records whose supplier, category, documentation or
// administrative unit contains term, ignoring case. A blank term keeps all.
func Filter(records []core.Record, term string) []core.Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if matches(r, term) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r core.Record, term string) bool {
	for _, field := range []string{r.Supplier, r.Category, r.Documentation, r.AdministrativeUnit} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Status selects records by their active flag.
type Status string

const (
	StatusActive   Status = "activas"
	StatusInactive Status = "inactivas"
	StatusAll      Status = "todas"
)

// ParseStatus maps a query value to a Status, defaulting to StatusActive.
func ParseStatus(v string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(v))) {
	case StatusInactive:
		return StatusInactive
	case StatusAll:
		return StatusAll
	}
	return StatusActive
}

// ByStatus keeps the records matching st.
func ByStatus(records []core.Record, st Status) []core.Record {
	if st == StatusAll {
		return records
	}
	want := st == StatusActive
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.Active == want {
			out = append(out, r)
		}
	}
	return out
}
