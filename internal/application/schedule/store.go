// Package schedule holds the client-side copy of all tasks and events.
//
// Every mutation is applied to memory first, then the whole dataset is sent to
// the persistence endpoint. When that fails the mutation is undone: an add is
// undone by removing the new record by id, an update or delete by restoring the
// collection as it was before the call. Overlapping mutations are not
// serialised against each other; the last persist to complete wins remotely.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/ports"
)

// State is a point-in-time copy of the store contents.
type State struct {
	Tasks     []entities.Task
	Events    []entities.Event
	IsLoading bool
	// Error holds the message of the last failed operation, empty when none.
	Error string
}

func (s State) clone() State {
	return State{
		Tasks:     entities.CloneTasks(s.Tasks),
		Events:    entities.CloneEvents(s.Events),
		IsLoading: s.IsLoading,
		Error:     s.Error,
	}
}

// Listener receives a copy of the state after every change.
type Listener func(State)

// Store is the single owner of the in-memory tasks and events.
type Store struct {
	persister ports.DatasetPersister
	logger    *logger.Logger
	newID     func() string

	mu      sync.Mutex
	state   State
	version uint64

	// deliverMu orders listener calls; delivered is the newest version handed out.
	deliverMu sync.Mutex
	delivered uint64

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store that persists through persister.
func New(persister ports.DatasetPersister, opts ...Option) *Store {
	s := &Store{
		persister: persister,
		logger:    logger.NewNop(),
		newID:     func() string { return uuid.New().String() },
		state: State{
			Tasks:  []entities.Task{},
			Events: []entities.Event{},
		},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("schedule_store")
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Tasks returns a copy of the current tasks.
func (s *Store) Tasks() []entities.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.CloneTasks(s.state.Tasks)
}

// Events returns a copy of the current events.
func (s *Store) Events() []entities.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.CloneEvents(s.state.Events)
}

// Err returns the recorded error message, empty when none.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Error
}

// Subscribe registers fn for state changes. The returned function removes it.
//
// Listeners are called one at a time and never see an older state after a
// newer one; a state superseded before its turn is skipped. A listener may
// read the store but must not mutate it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// ClearError drops the recorded error message.
func (s *Store) ClearError() {
	s.update(func(st *State) { st.Error = "" })
}

// LoadTasks replaces tasks and events with the persisted dataset. On failure
// the current data is left alone and the error is recorded.
func (s *Store) LoadTasks(ctx context.Context) error {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})

	ds, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.Errorw("Error loading tasks", "error", err)
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = errorMessage(err, "Failed to load tasks")
		})
		return fmt.Errorf("load tasks: %w", err)
	}

	loaded := entities.Dataset{}
	if ds != nil {
		loaded = ds.Clone()
	}
	loaded.Normalize()

	s.update(func(st *State) {
		st.Tasks = loaded.Tasks
		st.Events = loaded.Events
		st.IsLoading = false
	})
	return nil
}

// AddTask appends a new task and persists. On failure the task is removed
// again by id, so tasks added concurrently survive the rollback.
func (s *Store) AddTask(ctx context.Context, draft entities.TaskDraft) (entities.Task, error) {
	task := entities.Task{
		ID:          s.newID(),
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     entities.NormalizeTime(draft.DueDate),
		Completed:   draft.Completed,
		Priority:    draft.Priority,
		Tags:        append([]string{}, draft.Tags...),
	}

	payload := s.mutate(func(st *State) {
		st.Tasks = append(st.Tasks, task.Clone())
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to save task", func(st *State) {
			st.Tasks = removeTask(st.Tasks, task.ID)
		})
		return entities.Task{}, fmt.Errorf("add task: %w", err)
	}
	return task, nil
}

// UpdateTask merges patch into the task with the given id and persists. On
// failure the whole task list is restored to its state before the call.
func (s *Store) UpdateTask(ctx context.Context, id string, patch entities.TaskPatch) error {
	var previous []entities.Task
	payload := s.mutate(func(st *State) {
		previous = st.Tasks
		next := make([]entities.Task, len(st.Tasks))
		for i, t := range st.Tasks {
			if t.ID == id {
				next[i] = patch.Apply(t.Clone())
				continue
			}
			next[i] = t
		}
		st.Tasks = next
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to update task", func(st *State) {
			st.Tasks = previous
		})
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

// DeleteTask removes the task with the given id and persists. On failure the
// whole task list is restored.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var previous []entities.Task
	payload := s.mutate(func(st *State) {
		previous = st.Tasks
		st.Tasks = removeTask(st.Tasks, id)
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to delete task", func(st *State) {
			st.Tasks = previous
		})
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// AddEvent appends a new event and persists. On failure the event is removed
// again by id.
func (s *Store) AddEvent(ctx context.Context, draft entities.EventDraft) (entities.Event, error) {
	event := entities.Event{
		ID:          s.newID(),
		Title:       draft.Title,
		Start:       draft.Start,
		End:         draft.End,
		Description: draft.Description,
		AllDay:      draft.AllDay,
	}

	payload := s.mutate(func(st *State) {
		st.Events = append(st.Events, event)
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to save event", func(st *State) {
			st.Events = removeEvent(st.Events, event.ID)
		})
		return entities.Event{}, fmt.Errorf("add event: %w", err)
	}
	return event, nil
}

// UpdateEvent merges patch into the event with the given id and persists. On
// failure the whole event list is restored.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch entities.EventPatch) error {
	var previous []entities.Event
	payload := s.mutate(func(st *State) {
		previous = st.Events
		next := make([]entities.Event, len(st.Events))
		for i, e := range st.Events {
			if e.ID == id {
				next[i] = patch.Apply(e)
				continue
			}
			next[i] = e
		}
		st.Events = next
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to update event", func(st *State) {
			st.Events = previous
		})
		return fmt.Errorf("update event %s: %w", id, err)
	}
	return nil
}

// DeleteEvent removes the event with the given id and persists. On failure the
// whole event list is restored.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	var previous []entities.Event
	payload := s.mutate(func(st *State) {
		previous = st.Events
		st.Events = removeEvent(st.Events, id)
	})

	if err := s.persist(ctx, payload); err != nil {
		s.fail(err, "Failed to delete event", func(st *State) {
			st.Events = previous
		})
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// mutate applies fn under the lock and returns the full dataset to persist,
// captured before any other mutation can run.
//
// fn must replace slices rather than modify their elements in place: the
// previous slice values are kept as rollback snapshots.
func (s *Store) mutate(fn func(*State)) entities.Dataset {
	s.mu.Lock()
	fn(&s.state)
	payload := entities.Dataset{
		Tasks:  entities.CloneTasks(s.state.Tasks),
		Events: entities.CloneEvents(s.state.Events),
	}
	snapshot := s.state.clone()
	s.version++
	version := s.version
	s.mu.Unlock()

	s.notify(version, snapshot)
	return payload
}

// update applies fn under the lock and notifies listeners.
func (s *Store) update(fn func(*State)) {
	s.mutate(fn)
}

func (s *Store) persist(ctx context.Context, ds entities.Dataset) error {
	return s.persister.Save(ctx, ds)
}

// fail undoes a mutation and records the error message.
func (s *Store) fail(err error, fallback string, undo func(*State)) {
	s.logger.Errorw(fallback, "error", err)
	s.update(func(st *State) {
		undo(st)
		st.Error = errorMessage(err, fallback)
	})
}

func (s *Store) notify(version uint64, st State) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(st.clone())
	}
}

func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

func removeTask(tasks []entities.Task, id string) []entities.Task {
	out := make([]entities.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func removeEvent(events []entities.Event, id string) []entities.Event {
	out := make([]entities.Event, 0, len(events))
	for _, e := range events {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
