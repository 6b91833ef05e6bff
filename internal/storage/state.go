package storage

import (
	"sort"
	"time"
)

// state is the in-memory model shared by the memory and file backends.
type state struct {
	Tasks    map[int]TaskRecord `json:"tasks"`
	Launches map[int64]Launch   `json:"launches"`
	NextID   int64              `json:"next_id"`
}

// change is one journal entry. Exactly one field is set.
type change struct {
	Task   *TaskRecord `json:"task,omitempty"`
	Launch *Launch     `json:"launch,omitempty"`
	Drop   int64       `json:"drop,omitempty"`
}

func newState() *state {
	return &state{Tasks: map[int]TaskRecord{}, Launches: map[int64]Launch{}}
}

func (s *state) apply(c change) {
	switch {
	case c.Task != nil:
		s.Tasks[c.Task.ID] = *c.Task
	case c.Launch != nil:
		s.Launches[c.Launch.ID] = *c.Launch
		if c.Launch.ID > s.NextID {
			s.NextID = c.Launch.ID
		}
	case c.Drop != 0:
		delete(s.Launches, c.Drop)
	}
}

// history returns the task's launches, newest first.
func (s *state) history(taskID int) []Launch {
	var out []Launch
	for _, l := range s.Launches {
		if l.TaskID == taskID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// prune returns drop changes for launches beyond the newest keep.
func (s *state) prune(taskID, keep int) []change {
	if keep <= 0 {
		return nil
	}
	h := s.history(taskID)
	if len(h) <= keep {
		return nil
	}
	out := make([]change, 0, len(h)-keep)
	for _, l := range h[keep:] {
		out = append(out, change{Drop: l.ID})
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
