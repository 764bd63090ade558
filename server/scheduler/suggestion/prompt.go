package suggestion

import (
	"fmt"
	"strings"

	"github.com/hrygo/chronoplan/server/scheduler/availability"
)

const systemPrompt = `You are a productivity assistant that analyzes calendars and recommends the best times to work on a task. Always answer with valid JSON only.`

const promptTemplate = `Pick the 3 best time slots for the task below.

Task:
- Title: %s
- Description: %s
- Priority: %s
- Type: %s
- Estimated duration: %.1f hour(s)

User workload:
- Total tasks: %d
- Completed tasks: %d
- Pending urgent tasks: %d

Available slots:
%s

Guidelines:
1. Urgent and high priority tasks should be scheduled soon.
2. Meetings fit mid-day; focused work fits mornings.
3. Take the current workload into account.
4. For urgent tasks prefer the earliest slots.

Answer ONLY with JSON in exactly this shape:
{"recommendations":[{"slotId":0,"score":95,"justification":"short reason, at most 100 characters"}]}

Return exactly 3 recommendations ordered by score, highest first.`

func buildPrompt(task TaskContext, stats UserStats, candidates []availability.Slot) string {
	description := task.Description
	if description == "" {
		description = "none"
	}
	priority := string(task.Priority)
	if priority == "" {
		priority = "medium"
	}
	taskType := task.Type
	if taskType == "" {
		taskType = "task"
	}

	var slots strings.Builder
	for i, slot := range candidates {
		fmt.Fprintf(&slots, "%d. %s - %s (%s)\n",
			i,
			slot.Start.Format("Monday January 2 at 15:04"),
			slot.End.Format("15:04"),
			timeOfDay(slot.Start.Hour()))
	}

	return fmt.Sprintf(promptTemplate,
		task.Title, description, priority, taskType, task.Duration().Hours(),
		stats.TotalTasks, stats.CompletedTasks, stats.UrgentPendingTasks,
		strings.TrimRight(slots.String(), "\n"))
}

func timeOfDay(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	default:
		return "evening"
	}
}
