package service

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/enum"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/model"
	"github.com/tablefront/pos/internal/store"
)

// Table lifecycle events.
const (
	tableAssign            = "assign"
	tableRelease           = "release"
	tableResetForService   = "reset_for_service"
	tableReserve           = "reserve"
	tableCancelReservation = "cancel_reservation"
)

// tableTransitions maps an event to the statuses it may fire from and the
// status it leads to.
var tableTransitions = map[string]struct {
	from []string
	to   string
}{
	tableAssign:            {from: []string{enum.TableStatusAvailable, enum.TableStatusReserved}, to: enum.TableStatusOccupied},
	tableRelease:           {from: []string{enum.TableStatusOccupied}, to: enum.TableStatusCleaning},
	tableResetForService:   {from: []string{enum.TableStatusCleaning}, to: enum.TableStatusAvailable},
	tableReserve:           {from: []string{enum.TableStatusAvailable}, to: enum.TableStatusReserved},
	tableCancelReservation: {from: []string{enum.TableStatusReserved}, to: enum.TableStatusAvailable},
}

// nextTableStatus returns the status event leads to from current.
func nextTableStatus(current, event string) (string, error) {
	tr, ok := tableTransitions[event]
	if !ok {
		return "", transitionf("unknown table event %s", event)
	}
	for _, s := range tr.from {
		if s == current {
			return tr.to, nil
		}
	}
	return "", transitionf("cannot %s a table that is %s", strings.ReplaceAll(event, "_", " "), current)
}

// TablePatch carries optional floor plan fields for AddTable and UpdateTable.
type TablePatch struct {
	TableNumber *string
	Seats       *int32
	Location    *string
}

// TableService tracks table occupancy in memory. All mutations are persisted
// before they are applied.
type TableService struct {
	repo store.TableRepository
	pub  events.Publisher
	now  func() time.Time

	mu     sync.Mutex
	tables map[uuid.UUID]model.Table
}

func NewTableService(repo store.TableRepository, pub events.Publisher) *TableService {
	if pub == nil {
		pub = events.Noop{}
	}
	return &TableService{
		repo:   repo,
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
		tables: map[uuid.UUID]model.Table{},
	}
}

// Load replaces the in-memory floor plan with the repository contents.
func (s *TableService) Load(ctx context.Context) error {
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return persistErr("list tables", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[uuid.UUID]model.Table, len(tables))
	for _, t := range tables {
		s.tables[t.ID] = t
	}
	return nil
}

// ListTables returns tables ordered by table number, optionally only those in
// status.
func (s *TableService) ListTables(status string) []model.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Table, 0, len(s.tables))
	for _, t := range s.tables {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return tableNumberLess(out[i].TableNumber, out[j].TableNumber)
	})
	return out
}

func (s *TableService) GetTable(id uuid.UUID) (model.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[id]
	return t, ok
}

// AssignTable seats customerName at an available or reserved table without
// opening an order. Waiters go through OrderService.OpenTable instead, which
// keeps occupancy and the active order in step.
func (s *TableService) AssignTable(ctx context.Context, id uuid.UUID, customerName string) (model.Table, error) {
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return model.Table{}, validationf("customer name is required")
	}
	return s.fire(ctx, id, tableAssign, func(t *model.Table) { t.CurrentCustomer = customerName })
}

func (s *TableService) Reserve(ctx context.Context, id uuid.UUID) (model.Table, error) {
	return s.fire(ctx, id, tableReserve, nil)
}

func (s *TableService) CancelReservation(ctx context.Context, id uuid.UUID) (model.Table, error) {
	return s.fire(ctx, id, tableCancelReservation, nil)
}

// ResetForService marks a cleaned table available again.
func (s *TableService) ResetForService(ctx context.Context, id uuid.UUID) (model.Table, error) {
	return s.fire(ctx, id, tableResetForService, func(t *model.Table) { t.CurrentCustomer = "" })
}

// Release moves an occupied table to cleaning.
func (s *TableService) Release(ctx context.Context, id uuid.UUID) (model.Table, error) {
	return s.fire(ctx, id, tableRelease, nil)
}

// SetStatus overrides the status of a table. Only the value is checked, not
// the transition.
func (s *TableService) SetStatus(ctx context.Context, id uuid.UUID, status string) (model.Table, error) {
	if !enum.IsValidTableStatus(status) {
		return model.Table{}, validationf("invalid table status %q", status)
	}
	t, err := s.mutate(id, func(t model.Table) (model.Table, error) {
		t.Status = status
		if status == enum.TableStatusAvailable {
			t.CurrentCustomer = ""
		}
		t.UpdatedAt = s.now()
		if err := s.repo.UpdateTable(ctx, t); err != nil {
			return model.Table{}, persistErr("update table", err)
		}
		return t, nil
	})
	if err != nil {
		return model.Table{}, err
	}
	s.publishStatus(ctx, t)
	return t, nil
}

func (s *TableService) AddTable(ctx context.Context, p TablePatch) (model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := model.Table{ID: uuid.New(), Status: enum.TableStatusAvailable, CreatedAt: now, UpdatedAt: now}
	applyTablePatch(&t, p)
	if err := s.checkTable(t); err != nil {
		return model.Table{}, err
	}
	if err := s.repo.CreateTable(ctx, t); err != nil {
		return model.Table{}, persistErr("create table", err)
	}
	s.tables[t.ID] = t
	return t, nil
}

func (s *TableService) UpdateTable(ctx context.Context, id uuid.UUID, p TablePatch) (model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok {
		return model.Table{}, notFoundf("table %s", id)
	}
	applyTablePatch(&t, p)
	if err := s.checkTable(t); err != nil {
		return model.Table{}, err
	}
	t.UpdatedAt = s.now()
	if err := s.repo.UpdateTable(ctx, t); err != nil {
		return model.Table{}, persistErr("update table", err)
	}
	s.tables[id] = t
	return t, nil
}

// DeleteTable removes a table from the floor plan. Occupied tables are kept.
func (s *TableService) DeleteTable(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok {
		return notFoundf("table %s", id)
	}
	if t.Status == enum.TableStatusOccupied {
		return constraintf("table %s is occupied", t.TableNumber)
	}
	if err := s.repo.DeleteTable(ctx, id); err != nil {
		return persistErr("delete table", err)
	}
	delete(s.tables, id)
	return nil
}

// fire applies a lifecycle event to a single table and persists it.
func (s *TableService) fire(ctx context.Context, id uuid.UUID, event string, edit func(t *model.Table)) (model.Table, error) {
	t, err := s.mutate(id, func(t model.Table) (model.Table, error) {
		next, err := s.advance(t, event)
		if err != nil {
			return model.Table{}, err
		}
		if edit != nil {
			edit(&next)
		}
		if err := s.repo.UpdateTable(ctx, next); err != nil {
			return model.Table{}, persistErr("update table", err)
		}
		return next, nil
	})
	if err != nil {
		return model.Table{}, err
	}
	s.publishStatus(ctx, t)
	return t, nil
}

// advance returns t after event, stamped with the current time. t is not
// modified.
func (s *TableService) advance(t model.Table, event string) (model.Table, error) {
	to, err := nextTableStatus(t.Status, event)
	if err != nil {
		return model.Table{}, err
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return t, nil
}

// mutate runs fn against the current value of a table while holding the
// table lock. The value fn returns replaces the stored one only when fn
// succeeds; fn is responsible for persisting it.
func (s *TableService) mutate(id uuid.UUID, fn func(t model.Table) (model.Table, error)) (model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok {
		return model.Table{}, notFoundf("table %s", id)
	}
	next, err := fn(t)
	if err != nil {
		return model.Table{}, err
	}
	s.tables[id] = next
	return next, nil
}

func (s *TableService) checkTable(t model.Table) error {
	if strings.TrimSpace(t.TableNumber) == "" {
		return validationf("table_number is required")
	}
	if t.Seats <= 0 {
		return validationf("seats must be greater than zero")
	}
	for _, other := range s.tables {
		if other.ID != t.ID && other.TableNumber == t.TableNumber {
			return constraintf("table number %s already exists", t.TableNumber)
		}
	}
	return nil
}

func (s *TableService) publishStatus(ctx context.Context, t model.Table) {
	publish(ctx, s.pub, events.New(events.TableStatus, map[string]string{
		"table_id":     t.ID.String(),
		"table_number": t.TableNumber,
		"status":       t.Status,
	}))
}

// --- Helpers ---

func applyTablePatch(t *model.Table, p TablePatch) {
	if p.TableNumber != nil {
		t.TableNumber = strings.TrimSpace(*p.TableNumber)
	}
	if p.Seats != nil {
		t.Seats = *p.Seats
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
}

// tableNumberLess orders numeric table numbers numerically and everything
// else lexically after them.
func tableNumberLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func publish(ctx context.Context, pub events.Publisher, e events.Event) {
	if err := pub.Publish(ctx, e); err != nil {
		log.Printf("WARN: publish %s: %v", e.Type, err)
	}
}
