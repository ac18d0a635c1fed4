package users

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/roster/internal/shared"
)

// Store holds one session's roster and its pagination cursor.
//
// A Store is not safe for concurrent use; Registry serialises access per session.
type Store struct {
	records  []Record
	page     int
	pageSize int
	now      func() time.Time
}

// NewStore returns an empty roster positioned on page 1.
func NewStore(pageSize int) *Store {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Store{page: 1, pageSize: pageSize, now: time.Now}
}

// Add appends rec to the end of the roster and returns the stored record.
// The current page is left unchanged.
func (s *Store) Add(rec Record) Record {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = s.now().UTC()
	}
	s.records = append(s.records, rec)
	return rec
}

// Delete removes the record with the given id.
func (s *Store) Delete(id uuid.UUID) error {
	idx := slices.IndexFunc(s.records, func(r Record) bool { return r.ID == id })
	if idx < 0 {
		return ErrRecordNotFound
	}
	s.removeAt(idx)
	return nil
}

// DeleteAt removes the record at the absolute index.
func (s *Store) DeleteAt(index int) error {
	if index < 0 || index >= len(s.records) {
		return ErrIndexOutOfRange
	}
	s.removeAt(index)
	return nil
}

func (s *Store) removeAt(index int) {
	s.records = slices.Delete(s.records, index, index+1)
	if total := s.TotalPages(); s.page > total {
		s.page = max(total, 1)
	}
}

// SetPage moves to target, clamped to the existing pages.
func (s *Store) SetPage(target int) {
	s.page = s.pagination().Clamp(target)
}

// NextPage advances one page unless already on the last one.
func (s *Store) NextPage() {
	if s.HasNext() {
		s.page++
	}
}

// PrevPage goes back one page unless already on the first one.
func (s *Store) PrevPage() {
	if s.HasPrev() {
		s.page--
	}
}

// VisibleSlice returns a copy of the records on the current page.
func (s *Store) VisibleSlice() []Record {
	p := s.pagination()
	return slices.Clone(s.records[p.Offset():p.End()])
}

// TotalPages is ceil(len/pageSize); zero for an empty roster.
func (s *Store) TotalPages() int {
	return s.pagination().TotalPages
}

// Page returns the current 1-based page.
func (s *Store) Page() int { return s.page }

// PageSize returns the fixed page size.
func (s *Store) PageSize() int { return s.pageSize }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Empty reports whether the roster has no records.
func (s *Store) Empty() bool { return len(s.records) == 0 }

// Offset is the absolute index of the first visible record.
func (s *Store) Offset() int { return s.pagination().Offset() }

// HasPrev reports whether PrevPage would move.
func (s *Store) HasPrev() bool { return s.pagination().HasPrev() }

// HasNext reports whether NextPage would move.
func (s *Store) HasNext() bool { return s.pagination().HasNext() }

// Records returns a copy of every record in insertion order.
func (s *Store) Records() []Record {
	return slices.Clone(s.records)
}

// View snapshots the roster for rendering.
func (s *Store) View() View {
	p := s.pagination()
	rows := make([]Row, 0, p.End()-p.Offset())
	for i := p.Offset(); i < p.End(); i++ {
		rows = append(rows, Row{Record: s.records[i], Index: i, Number: i + 1})
	}
	return View{
		Rows:       rows,
		Page:       s.page,
		PageSize:   s.pageSize,
		TotalPages: p.TotalPages,
		Total:      p.Total,
		HasPrev:    s.HasPrev(),
		HasNext:    s.HasNext(),
		Visible:    len(s.records) > 0,
	}
}

func (s *Store) pagination() shared.Pagination {
	return shared.NewPagination(s.page, s.pageSize, len(s.records))
}
