package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/taskmaster/scheduler/internal/adapters/client"
	"github.com/taskmaster/scheduler/internal/application/schedule"
	"github.com/taskmaster/scheduler/internal/application/services"
	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
)

var validate = validator.New()

// timeLayouts are accepted by every date flag, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC3339 or YYYY-MM-DD[ HH:MM])", s)
}

// openStore connects a schedule store to the persistence endpoint and loads
// it. Errors recorded by the store are echoed to stderr as they happen.
func openStore(cmd *cobra.Command) (*schedule.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
		cfg.Client.Endpoint = endpoint
	}

	c := client.New(cfg.Client,
		client.WithTokenIssuer(services.NewTokenService(cfg.Auth)),
		client.WithLogger(logger.NewNop()),
	)
	store := schedule.New(c)

	unsubscribe := store.Subscribe(errorPrinter(cmd.ErrOrStderr()))

	if err := store.LoadTasks(cmd.Context()); err != nil {
		unsubscribe()
		return nil, nil, &reportedError{err: err}
	}
	return store, unsubscribe, nil
}

// errorPrinter reports each newly recorded store error once.
func errorPrinter(w io.Writer) schedule.Listener {
	last := ""
	return func(st schedule.State) {
		if st.Error != "" && st.Error != last {
			fmt.Fprintf(w, "error: %s\n", st.Error)
		}
		last = st.Error
	}
}

func withStore(fn func(cmd *cobra.Command, args []string, store *schedule.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := fn(cmd, args, store); err != nil {
			if store.Err() != "" {
				return &reportedError{err: err}
			}
			return err
		}
		return nil
	}
}

// reportedError marks an error the store listener already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// NewTaskCommand creates the task command with subcommands
func NewTaskCommand() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			tasks := store.Tasks()
			out := cmd.OutOrStdout()

			from, _ := cmd.Flags().GetString("due-from")
			to, _ := cmd.Flags().GetString("due-to")
			if from != "" || to != "" {
				start, end, err := parseRange(from, to)
				if err != nil {
					return err
				}
				tasks = schedule.TasksDueBetween(tasks, start, end)
			}

			if open, _ := cmd.Flags().GetBool("open"); open {
				filtered := tasks[:0]
				for _, t := range tasks {
					if !t.Completed {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(out, tasks)
			}

			if summary, _ := cmd.Flags().GetBool("summary"); summary {
				printSummary(out, schedule.Summarize(store.Snapshot(), time.Now()))
			}
			printTasks(out, tasks, time.Now())
			return nil
		}),
	}
	listCmd.Flags().Bool("summary", false, "Print dashboard counters above the list")
	listCmd.Flags().Bool("open", false, "Only show tasks that are not completed")
	listCmd.Flags().Bool("json", false, "Print tasks as JSON")
	listCmd.Flags().String("due-from", "", "Only tasks due at or after this time")
	listCmd.Flags().String("due-to", "", "Only tasks due before this time")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			draft, err := taskDraftFromFlags(cmd)
			if err != nil {
				return err
			}

			task, err := store.AddTask(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task: %s (ID: %s)\n", task.Title, task.ID)
			return nil
		}),
	}
	addCmd.Flags().String("title", "", "Task title (required)")
	addCmd.Flags().String("description", "", "Task description")
	addCmd.Flags().String("due", "", "Due date")
	addCmd.Flags().String("priority", string(entities.PriorityMedium), "Priority (low, medium, high)")
	addCmd.Flags().StringSlice("tag", nil, "Tag, repeatable")
	addCmd.Flags().Bool("completed", false, "Create the task as completed")

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			if err := requireTask(store, args[0]); err != nil {
				return err
			}
			patch, err := taskPatchFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := store.UpdateTask(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task: %s\n", args[0])
			return nil
		}),
	}
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("description", "", "New description")
	updateCmd.Flags().String("due", "", "New due date")
	updateCmd.Flags().String("priority", "", "New priority (low, medium, high)")
	updateCmd.Flags().StringSlice("tag", nil, "Replace tags, repeatable")
	updateCmd.Flags().Bool("completed", false, "Mark as completed or not")

	completeCmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task as completed",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			if err := requireTask(store, args[0]); err != nil {
				return err
			}
			undo, _ := cmd.Flags().GetBool("undo")
			done := !undo
			if err := store.UpdateTask(cmd.Context(), args[0], entities.TaskPatch{Completed: &done}); err != nil {
				return err
			}
			if done {
				fmt.Fprintf(cmd.OutOrStdout(), "Completed task: %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Reopened task: %s\n", args[0])
			}
			return nil
		}),
	}
	completeCmd.Flags().Bool("undo", false, "Reopen the task instead")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			if err := requireTask(store, args[0]); err != nil {
				return err
			}
			if err := store.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task: %s\n", args[0])
			return nil
		}),
	}

	taskCmd.AddCommand(listCmd, addCmd, updateCmd, completeCmd, deleteCmd)
	return taskCmd
}

// NewEventCommand creates the event command with subcommands
func NewEventCommand() *cobra.Command {
	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Manage calendar events",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			events := store.Events()

			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			if from != "" || to != "" {
				start, end, err := parseRange(from, to)
				if err != nil {
					return err
				}
				events = schedule.EventsBetween(events, start, end)
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		}),
	}
	listCmd.Flags().String("from", "", "Only events overlapping from this time")
	listCmd.Flags().String("to", "", "Only events overlapping before this time")
	listCmd.Flags().Bool("json", false, "Print events as JSON")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add an event",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			draft, err := eventDraftFromFlags(cmd)
			if err != nil {
				return err
			}
			event, err := store.AddEvent(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created event: %s (ID: %s)\n", event.Title, event.ID)
			return nil
		}),
	}
	addCmd.Flags().String("title", "", "Event title (required)")
	addCmd.Flags().String("start", "", "Start time (required)")
	addCmd.Flags().String("end", "", "End time (defaults to start + 1h)")
	addCmd.Flags().String("description", "", "Event description")
	addCmd.Flags().Bool("all-day", false, "All-day event")

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of an event",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			current, err := findEvent(store, args[0])
			if err != nil {
				return err
			}
			patch, err := eventPatchFromFlags(cmd)
			if err != nil {
				return err
			}
			if next := patch.Apply(current); next.End.Before(next.Start) {
				return fmt.Errorf("event end must not be before its start")
			}
			if err := store.UpdateEvent(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated event: %s\n", args[0])
			return nil
		}),
	}
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("start", "", "New start time")
	updateCmd.Flags().String("end", "", "New end time")
	updateCmd.Flags().String("description", "", "New description")
	updateCmd.Flags().Bool("all-day", false, "All-day event")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *schedule.Store) error {
			if _, err := findEvent(store, args[0]); err != nil {
				return err
			}
			if err := store.DeleteEvent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted event: %s\n", args[0])
			return nil
		}),
	}

	eventCmd.AddCommand(listCmd, addCmd, updateCmd, deleteCmd)
	return eventCmd
}

func taskDraftFromFlags(cmd *cobra.Command) (entities.TaskDraft, error) {
	flags := cmd.Flags()
	title, _ := flags.GetString("title")
	description, _ := flags.GetString("description")
	priority, _ := flags.GetString("priority")
	tags, _ := flags.GetStringSlice("tag")
	completed, _ := flags.GetBool("completed")

	draft := entities.TaskDraft{
		Title:       strings.TrimSpace(title),
		Description: description,
		Completed:   completed,
		Priority:    entities.Priority(priority),
		Tags:        tags,
	}

	if due, _ := flags.GetString("due"); due != "" {
		t, err := parseTime(due)
		if err != nil {
			return draft, err
		}
		draft.DueDate = &t
	}

	if err := validate.Struct(draft); err != nil {
		return draft, fmt.Errorf("invalid task: %w", err)
	}
	return draft, nil
}

func taskPatchFromFlags(cmd *cobra.Command) (entities.TaskPatch, error) {
	flags := cmd.Flags()
	var patch entities.TaskPatch

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		v = strings.TrimSpace(v)
		patch.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		t, err := parseTime(v)
		if err != nil {
			return patch, err
		}
		patch.DueDate = &t
	}
	if flags.Changed("priority") {
		v, _ := flags.GetString("priority")
		p := entities.Priority(v)
		patch.Priority = &p
	}
	if flags.Changed("tag") {
		v, _ := flags.GetStringSlice("tag")
		patch.Tags = append([]string{}, v...)
	}
	if flags.Changed("completed") {
		v, _ := flags.GetBool("completed")
		patch.Completed = &v
	}

	if err := validate.Struct(patch); err != nil {
		return patch, fmt.Errorf("invalid task update: %w", err)
	}
	return patch, nil
}

func eventDraftFromFlags(cmd *cobra.Command) (entities.EventDraft, error) {
	flags := cmd.Flags()
	title, _ := flags.GetString("title")
	description, _ := flags.GetString("description")
	allDay, _ := flags.GetBool("all-day")

	draft := entities.EventDraft{
		Title:       strings.TrimSpace(title),
		Description: description,
		AllDay:      allDay,
	}

	if s, _ := flags.GetString("start"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return draft, err
		}
		draft.Start = t
	}
	switch e, _ := flags.GetString("end"); {
	case e != "":
		t, err := parseTime(e)
		if err != nil {
			return draft, err
		}
		draft.End = t
	case !draft.Start.IsZero():
		draft.End = draft.Start.Add(time.Hour)
	}

	if err := validate.Struct(draft); err != nil {
		return draft, fmt.Errorf("invalid event: %w", err)
	}
	if draft.End.Before(draft.Start) {
		return draft, fmt.Errorf("event end must not be before its start")
	}
	return draft, nil
}

func eventPatchFromFlags(cmd *cobra.Command) (entities.EventPatch, error) {
	flags := cmd.Flags()
	var patch entities.EventPatch

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		v = strings.TrimSpace(v)
		patch.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	for name, dst := range map[string]**time.Time{"start": &patch.Start, "end": &patch.End} {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetString(name)
		t, err := parseTime(v)
		if err != nil {
			return patch, err
		}
		*dst = &t
	}
	if flags.Changed("all-day") {
		v, _ := flags.GetBool("all-day")
		patch.AllDay = &v
	}

	if err := validate.Struct(patch); err != nil {
		return patch, fmt.Errorf("invalid event update: %w", err)
	}
	return patch, nil
}

func requireTask(store *schedule.Store, id string) error {
	for _, t := range store.Tasks() {
		if t.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", entities.ErrTaskNotFound, id)
}

func findEvent(store *schedule.Store, id string) (entities.Event, error) {
	for _, e := range store.Events() {
		if e.ID == id {
			return e, nil
		}
	}
	return entities.Event{}, fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
}

// parseRange turns optional bounds into [from, to); a missing bound is open.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return start, end, err
		}
		start = t
	}
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return start, end, err
		}
		end = t
	}
	if !start.Before(end) {
		return start, end, fmt.Errorf("range start must be before its end")
	}
	return start, end, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s schedule.Summary) {
	fmt.Fprintf(w, "Tasks: %d total, %d open, %d completed, %d overdue, %d high priority\n",
		s.TotalTasks, s.OpenTasks, s.CompletedTasks, s.OverdueTasks, s.HighPriority)
	fmt.Fprintf(w, "Upcoming events: %d\n\n", s.UpcomingEvents)
}

func printTasks(w io.Writer, tasks []entities.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE\tTAGS")
	for _, t := range tasks {
		status := "open"
		switch {
		case t.Completed:
			status = "done"
		case t.IsOverdue(now):
			status = "overdue"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, status, t.Priority, due, t.Title, strings.Join(t.Tags, ","))
	}
	tw.Flush()
}

func printEvents(w io.Writer, events []entities.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tTITLE")
	for _, e := range events {
		layout := "2006-01-02 15:04"
		if e.AllDay {
			layout = "2006-01-02"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Start.Local().Format(layout), e.End.Local().Format(layout), e.Title)
	}
	tw.Flush()
}
