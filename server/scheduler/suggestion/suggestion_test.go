package suggestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chronoplan/plugin/ai"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/store"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			f.prompts = append(f.prompts, m.Content)
		}
	}
	return f.response, f.err
}

func candidateSlots(n int) []availability.Slot {
	slots := make([]availability.Slot, n)
	for i := 0; i < n; i++ {
		start := time.Date(2024, 3, 4+i/2, 9+(i%2)*5, 0, 0, 0, time.UTC)
		slots[i] = availability.Slot{Start: start, End: start.Add(2 * time.Hour), DurationHours: 2}
	}
	return slots
}

func TestRank_UsesRecommendations(t *testing.T) {
	llm := &fakeLLM{response: "```json\n" +
		`{"recommendations":[{"slotId":4,"score":70,"justification":"Quiet afternoon"},` +
		`{"slotId":1,"score":95,"justification":"Early in the week"},` +
		`{"slotId":42,"score":99,"justification":"does not exist"},` +
		`{"slotId":1,"score":10,"justification":"repeated"}]}` + "\n```"}
	ranker := NewRanker(llm)

	ranked := ranker.Rank(context.Background(), TaskContext{Title: "Write report", Priority: store.PriorityHigh}, UserStats{TotalTasks: 4}, candidateSlots(12))
	require.Len(t, ranked, 2)
	assert.Equal(t, 95, ranked[0].Score)
	assert.Equal(t, "Early in the week", ranked[0].Justification)
	assert.Equal(t, candidateSlots(12)[1].Start, ranked[0].Start)
	assert.Equal(t, 70, ranked[1].Score)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "Write report")
	assert.Contains(t, prompt, "Total tasks: 4")
	assert.Contains(t, prompt, "9. ")
	assert.NotContains(t, prompt, "10. ", "only the first ten candidates are offered")
}

func TestRank_Fallback(t *testing.T) {
	tests := []struct {
		name string
		llm  ai.LLMService
	}{
		{"no llm", nil},
		{"llm error", &fakeLLM{err: errors.New("rate limited")}},
		{"malformed json", &fakeLLM{response: "I would pick Monday"}},
		{"no usable ids", &fakeLLM{response: `{"recommendations":[{"slotId":99,"score":90,"justification":"x"}]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := NewRanker(tt.llm).Rank(context.Background(), TaskContext{Title: "Plan"}, UserStats{}, candidateSlots(5))
			require.Len(t, ranked, 3)
			for i, want := range []int{80, 70, 60} {
				assert.Equal(t, want, ranked[i].Score)
				assert.Equal(t, candidateSlots(5)[i].Start, ranked[i].Start)
				assert.NotEmpty(t, ranked[i].Justification)
			}
		})
	}

	assert.Empty(t, NewRanker(nil).Rank(context.Background(), TaskContext{Title: "Plan"}, UserStats{}, nil))
	assert.Len(t, NewRanker(nil).Rank(context.Background(), TaskContext{Title: "Plan"}, UserStats{}, candidateSlots(2)), 2)
}

func TestRank_ClampsScoreAndJustification(t *testing.T) {
	long := strings.Repeat("a", 150)
	llm := &fakeLLM{response: `{"recommendations":[{"slotId":0,"score":150,"justification":"` + long + `"}]}`}
	ranked := NewRanker(llm).Rank(context.Background(), TaskContext{Title: "Plan"}, UserStats{}, candidateSlots(1))
	require.Len(t, ranked, 1)
	assert.Equal(t, 100, ranked[0].Score)
	assert.Equal(t, strings.Repeat("a", maxJustification), ranked[0].Justification)

	wide := strings.Repeat("é", 150)
	llm.response = `{"recommendations":[{"slotId":0,"score":50,"justification":"` + wide + `"}]}`
	ranked = NewRanker(llm).Rank(context.Background(), TaskContext{Title: "Plan"}, UserStats{}, candidateSlots(1))
	require.Len(t, ranked, 1)
	assert.Equal(t, maxJustification, utf8.RuneCountInString(ranked[0].Justification))
}

func TestTaskContext_Duration(t *testing.T) {
	assert.Equal(t, 2*time.Hour, TaskContext{}.Duration())
	assert.Equal(t, 90*time.Minute, TaskContext{EstimatedHours: 1.5}.Duration())
}

func TestStatsFromTasks(t *testing.T) {
	stats := StatsFromTasks([]*store.Task{
		{Status: store.TaskDone, Priority: store.PriorityUrgent},
		{Status: store.TaskTodo, Priority: store.PriorityUrgent},
		{Status: store.TaskInProgress, Priority: store.PriorityLow},
	})
	assert.Equal(t, UserStats{TotalTasks: 3, CompletedTasks: 1, UrgentPendingTasks: 1}, stats)
}

type fakeCalendar struct {
	resp     *calendar.SlotResponse
	err      error
	tasksErr error
	req      *calendar.SlotRequest
}

func (f *fakeCalendar) FindAvailableSlots(ctx context.Context, userID int32, req *calendar.SlotRequest) (*calendar.SlotResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeCalendar) ListTasks(ctx context.Context, userID int32) ([]*store.Task, error) {
	return nil, f.tasksErr
}

func TestPlanner_Suggest(t *testing.T) {
	ctx := context.Background()
	gap := availability.Slot{
		Start:         time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		DurationHours: 3,
	}
	cal := &fakeCalendar{
		resp:     &calendar.SlotResponse{Slots: []availability.Slot{gap}, Partial: true, FailedSources: []string{"google"}},
		tasksErr: errors.New("db down"),
	}
	planner := NewPlanner(cal, nil)

	result, err := planner.Suggest(ctx, 1, TaskContext{Title: " Review ", EstimatedHours: 1})
	require.NoError(t, err)
	assert.True(t, cal.req.BestEffort)
	assert.Equal(t, time.Hour, cal.req.MinDuration)
	assert.True(t, result.Partial)
	assert.Equal(t, []string{"google"}, result.FailedSources)

	require.Len(t, result.Slots, 1)
	assert.Equal(t, gap.Start, result.Slots[0].Start)
	assert.Equal(t, gap.Start.Add(time.Hour), result.Slots[0].End)
	assert.Equal(t, 1.0, result.Slots[0].DurationHours)
	assert.Equal(t, 80, result.Slots[0].Score)

	_, err = planner.Suggest(ctx, 1, TaskContext{Title: "  "})
	assert.ErrorIs(t, err, ErrMissingTitle)

	cal.err = calendar.ErrBusyDataUnavailable
	_, err = planner.Suggest(ctx, 1, TaskContext{Title: "Review"})
	assert.ErrorIs(t, err, calendar.ErrBusyDataUnavailable)
}

type countingLLM struct {
	fakeLLM
	calls int
}

func (c *countingLLM) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	c.calls++
	return c.fakeLLM.Chat(ctx, messages)
}

func TestRank_CachesUsableResponses(t *testing.T) {
	llm := &countingLLM{fakeLLM: fakeLLM{response: `{"recommendations":[{"slotId":1,"score":90,"justification":"ok"}]}`}}
	ranker := NewRanker(llm)
	task := TaskContext{Title: "Plan"}

	first := ranker.Rank(context.Background(), task, UserStats{}, candidateSlots(3))
	second := ranker.Rank(context.Background(), task, UserStats{}, candidateSlots(3))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, llm.calls)

	ranker.Rank(context.Background(), TaskContext{Title: "Other"}, UserStats{}, candidateSlots(3))
	assert.Equal(t, 2, llm.calls)

	broken := &countingLLM{fakeLLM: fakeLLM{response: "not json"}}
	ranker = NewRanker(broken)
	ranker.Rank(context.Background(), task, UserStats{}, candidateSlots(3))
	ranker.Rank(context.Background(), task, UserStats{}, candidateSlots(3))
	assert.Equal(t, 2, broken.calls, "unusable answers are not cached")
}
