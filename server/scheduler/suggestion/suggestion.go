// Package suggestion ranks free time slots for a task.
//
// Candidates come from the availability engine. An LLM orders the first few
// and justifies each pick; when it is unavailable or answers with something
// unusable, the earliest candidates are returned with fixed scores.
package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/chronoplan/plugin/ai"
	"github.com/hrygo/chronoplan/plugin/ai/cache"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/store"
)

const (
	// DefaultDurationHours is used for tasks without an estimate.
	DefaultDurationHours = 2.0

	maxCandidates      = 10
	maxRecommendations = 3
	defaultTimeout     = 30 * time.Second

	fallbackJustification = "Free slot in your calendar"
	maxJustification      = 100
)

var fallbackScores = []int{80, 70, 60}

// TaskContext describes the task to place.
type TaskContext struct {
	Title          string             `json:"title"`
	Description    string             `json:"description,omitempty"`
	Priority       store.TaskPriority `json:"priority,omitempty"`
	Type           string             `json:"type,omitempty"`
	EstimatedHours float64            `json:"estimated_hours,omitempty"`
}

// Duration is the estimated length of the task, DefaultDurationHours when unset.
func (t TaskContext) Duration() time.Duration {
	hours := t.EstimatedHours
	if hours <= 0 {
		hours = DefaultDurationHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// UserStats summarizes the user's workload for the prompt.
type UserStats struct {
	TotalTasks         int `json:"total_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	UrgentPendingTasks int `json:"urgent_pending_tasks"`
}

// StatsFromTasks counts tasks by state.
func StatsFromTasks(tasks []*store.Task) UserStats {
	stats := UserStats{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Status == store.TaskDone {
			stats.CompletedTasks++
			continue
		}
		if t.Priority == store.PriorityUrgent {
			stats.UrgentPendingTasks++
		}
	}
	return stats
}

// Ranker orders candidate slots with an LLM. Usable answers are cached by
// prompt, so repeating a request over the same free time costs one call.
type Ranker struct {
	llm       ai.LLMService
	timeout   time.Duration
	responses *cache.LRU
}

// NewRanker creates a ranker. A nil llm always yields the fallback ranking.
func NewRanker(llm ai.LLMService) *Ranker {
	return &Ranker{llm: llm, timeout: defaultTimeout, responses: cache.NewLRU(0, 0)}
}

type recommendation struct {
	SlotID        int    `json:"slotId"`
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

type recommendations struct {
	Recommendations []recommendation `json:"recommendations"`
}

// Rank returns at most three of the first ten slots, best first, with Score and
// Justification filled in.
func (r *Ranker) Rank(ctx context.Context, task TaskContext, stats UserStats, slots []availability.Slot) []availability.Slot {
	if len(slots) == 0 {
		return []availability.Slot{}
	}
	candidates := slots
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	if r.llm == nil {
		return fallback(candidates)
	}

	prompt := buildPrompt(task, stats, candidates)
	key := cache.Key(systemPrompt, prompt)
	if cached, ok := r.responses.Get(key); ok {
		if ranked, err := applyRecommendations(cached, candidates); err == nil && len(ranked) > 0 {
			return ranked
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.llm.Chat(ctx, []ai.Message{
		ai.SystemPrompt(systemPrompt),
		ai.UserMessage(prompt),
	})
	if err != nil {
		slog.Warn("slot ranking failed, using fallback",
			"task", task.Title,
			"error", err)
		return fallback(candidates)
	}

	ranked, err := applyRecommendations(response, candidates)
	if err != nil || len(ranked) == 0 {
		slog.Warn("unusable slot ranking, using fallback",
			"task", task.Title,
			"response", truncateLog(response, 200),
			"error", err)
		return fallback(candidates)
	}
	r.responses.Set(key, response)
	return ranked
}

func fallback(candidates []availability.Slot) []availability.Slot {
	n := min(len(candidates), maxRecommendations)
	ranked := make([]availability.Slot, n)
	for i := 0; i < n; i++ {
		ranked[i] = candidates[i]
		ranked[i].Score = fallbackScores[i]
		ranked[i].Justification = fallbackJustification
	}
	return ranked
}

// applyRecommendations maps the LLM answer back to candidates. Unknown and
// repeated ids are dropped.
func applyRecommendations(response string, candidates []availability.Slot) ([]availability.Slot, error) {
	var parsed recommendations
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations: %w", err)
	}

	seen := make(map[int]bool)
	ranked := make([]availability.Slot, 0, maxRecommendations)
	for _, rec := range parsed.Recommendations {
		if rec.SlotID < 0 || rec.SlotID >= len(candidates) || seen[rec.SlotID] {
			continue
		}
		seen[rec.SlotID] = true

		slot := candidates[rec.SlotID]
		slot.Score = max(0, min(100, rec.Score))
		slot.Justification = cutRunes(strings.TrimSpace(rec.Justification), maxJustification)
		if slot.Justification == "" {
			slot.Justification = fallbackJustification
		}
		ranked = append(ranked, slot)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > maxRecommendations {
		ranked = ranked[:maxRecommendations]
	}
	return ranked, nil
}

// extractJSON strips markdown fences and surrounding prose from an LLM answer.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}
	return response
}

func cutRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncateLog(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
