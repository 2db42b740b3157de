package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_IsValid(t *testing.T) {
	assert.True(t, PriorityLow.IsValid())
	assert.True(t, PriorityMedium.IsValid())
	assert.True(t, PriorityHigh.IsValid())
	assert.False(t, Priority("urgent").IsValid())
	assert.False(t, Priority("").IsValid())
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, Task{DueDate: &past}.IsOverdue(now))
	assert.False(t, Task{DueDate: &past, Completed: true}.IsOverdue(now))
	assert.False(t, Task{DueDate: &future}.IsOverdue(now))
	assert.False(t, Task{}.IsOverdue(now))
}

func TestEvent_Overlaps(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}

	assert.True(t, ev.Overlaps(day, day.Add(24*time.Hour)))
	assert.True(t, ev.Overlaps(day.Add(10*time.Hour+30*time.Minute), day.Add(12*time.Hour)))
	assert.True(t, ev.Overlaps(day.Add(11*time.Hour), day.Add(12*time.Hour)), "end is inclusive")
	assert.False(t, ev.Overlaps(day, day.Add(10*time.Hour)), "range end is exclusive")
	assert.False(t, ev.Overlaps(day.Add(12*time.Hour), day.Add(13*time.Hour)))
}

func TestTaskPatch_Apply(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	base := Task{ID: "a", Title: "old", DueDate: &due, Priority: PriorityLow, Tags: []string{"x"}}

	title := "new"
	done := true
	high := PriorityHigh
	got := TaskPatch{Title: &title, Completed: &done, Priority: &high}.Apply(base)

	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "new", got.Title)
	assert.True(t, got.Completed)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, &due, got.DueDate)
	assert.Equal(t, []string{"x"}, got.Tags)

	zero := time.Time{}
	got = TaskPatch{DueDate: &zero}.Apply(base)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate), "a zero due date keeps the previous one")

	got = TaskPatch{Tags: []string{}}.Apply(base)
	assert.Empty(t, got.Tags)
}

func TestTaskPatch_ApplyDoesNotAlias(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tags := []string{"a"}

	got := TaskPatch{DueDate: &due, Tags: tags}.Apply(Task{})
	tags[0] = "changed"
	due = due.Add(time.Hour)

	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Equal(t, 9, got.DueDate.Hour())
}

func TestEventPatch_Apply(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	base := Event{ID: "e", Title: "old", Start: start, End: start.Add(time.Hour)}

	end := start.Add(2 * time.Hour)
	allDay := true
	got := EventPatch{End: &end, AllDay: &allDay}.Apply(base)

	assert.Equal(t, "old", got.Title)
	assert.Equal(t, start, got.Start)
	assert.Equal(t, end, got.End)
	assert.True(t, got.AllDay)
}

func TestDataset_NormalizeAndJSON(t *testing.T) {
	zero := time.Time{}
	ds := Dataset{Tasks: []Task{{ID: "a", DueDate: &zero}}}
	ds.Normalize()

	assert.Nil(t, ds.Tasks[0].DueDate)
	assert.Equal(t, []string{}, ds.Tasks[0].Tags)

	raw, err := json.Marshal(ds)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"tasks": [{"id":"a","title":"","description":"","dueDate":null,"completed":false,"priority":"","tags":[]}],
		"events": []
	}`, string(raw))
}

func TestDataset_Clone(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ds := Dataset{
		Tasks:  []Task{{ID: "a", DueDate: &due, Tags: []string{"x"}}},
		Events: []Event{{ID: "e"}},
	}

	c := ds.Clone()
	c.Tasks[0].Tags[0] = "y"
	*c.Tasks[0].DueDate = due.Add(time.Hour)
	c.Events[0].Title = "changed"

	assert.Equal(t, "x", ds.Tasks[0].Tags[0])
	assert.Equal(t, due, *ds.Tasks[0].DueDate)
	assert.Empty(t, ds.Events[0].Title)

	assert.Nil(t, CloneTasks(nil))
	assert.Nil(t, CloneEvents(nil))
}
