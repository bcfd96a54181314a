// Package workflow defines the task graph model for orchestrated agent
// runs. A Workflow is a goal broken into tasks wired by dependencies;
// tasks become executable in waves as the tasks they depend on
// complete.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Validation errors.
var (
	ErrNoTasks           = errors.New("workflow has no tasks")
	ErrEmptyTaskID       = errors.New("empty task id")
	ErrDuplicateTaskID   = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrSelfDependency    = errors.New("task depends on itself")
	ErrDependencyCycle   = errors.New("dependency cycle")
)

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	// TaskPending means the task has not run yet.
	TaskPending TaskStatus = "pending"
	// TaskReady means the task is cleared to run: its dependencies have
	// completed and a controller has surfaced it as the next wave.
	TaskReady TaskStatus = "ready"
	// TaskRunning means an agent is executing the task.
	TaskRunning TaskStatus = "running"
	// TaskCompleted means the task finished and carries a result.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task finished with an error.
	TaskFailed TaskStatus = "failed"
)

// Status is the lifecycle state of a whole workflow.
type Status string

const (
	// StatusReady means the plan validated and is waiting to run.
	StatusReady Status = "ready"
	// StatusRunning means tasks are executing.
	StatusRunning Status = "running"
	// StatusCompleted means every task completed.
	StatusCompleted Status = "completed"
	// StatusFailed means at least one task failed or could never run.
	StatusFailed Status = "failed"
)

// Task is one unit of work assigned to an agent type.
type Task struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	AgentType    string            `json:"agent_type"`
	Instructions string            `json:"instructions"`
	DependsOn    []string          `json:"depends_on,omitempty"`
	Status       TaskStatus        `json:"status"`
	Result       string            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Start marks the task running.
func (t *Task) Start(now time.Time) {
	t.Status = TaskRunning
	t.StartedAt = &now
}

// Complete marks the task completed and records its result.
func (t *Task) Complete(result string, now time.Time) {
	t.Status = TaskCompleted
	t.Result = result
	t.CompletedAt = &now
}

// Fail marks the task failed and records the error message.
func (t *Task) Fail(reason string, now time.Time) {
	t.Status = TaskFailed
	t.Error = reason
	t.CompletedAt = &now
}

// Terminal reports whether the task reached a final status.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// Workflow is a validated plan of dependent tasks working toward a
// goal.
//
// Tasks is a slice rather than a map so that iteration order is stable
// across runs; orchestration engines that replay workflow code depend
// on that.
type Workflow struct {
	ID          string     `json:"id"`
	Goal        string     `json:"goal"`
	Tasks       []Task     `json:"tasks"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New assembles and validates a workflow plan. Task statuses default to
// pending; the returned workflow has a fresh ID and StatusReady.
func New(goal string, tasks []Task) (*Workflow, error) {
	w := &Workflow{
		ID:        uuid.NewString(),
		Goal:      goal,
		Tasks:     make([]Task, len(tasks)),
		Status:    StatusReady,
		CreatedAt: time.Now().UTC(),
	}
	copy(w.Tasks, tasks)
	for i := range w.Tasks {
		if w.Tasks[i].Status == "" {
			w.Tasks[i].Status = TaskPending
		}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks the task graph: at least one task, unique non-empty
// IDs, dependencies that resolve to tasks in the plan, no
// self-dependencies, and no cycles.
func (w *Workflow) Validate() error {
	if len(w.Tasks) == 0 {
		return ErrNoTasks
	}

	index := make(map[string]*Task, len(w.Tasks))
	for i := range w.Tasks {
		t := &w.Tasks[i]
		if t.ID == "" {
			return fmt.Errorf("%w: task at position %d", ErrEmptyTaskID, i)
		}
		if _, ok := index[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTaskID, t.ID)
		}
		index[t.ID] = t
	}

	for i := range w.Tasks {
		t := &w.Tasks[i]
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("%w: %s", ErrSelfDependency, t.ID)
			}
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	// Depth-first walk over the dependency edges. A task seen again
	// while its subtree is still open closes a cycle.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(w.Tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: involving task %s", ErrDependencyCycle, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range index[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for i := range w.Tasks {
		if err := visit(w.Tasks[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// Task returns a pointer to the task with the given ID.
func (w *Workflow) Task(id string) (*Task, bool) {
	for i := range w.Tasks {
		if w.Tasks[i].ID == id {
			return &w.Tasks[i], true
		}
	}
	return nil, false
}

// ExecutableTasks returns the tasks that can run now: pending or ready
// tasks whose dependencies have all completed, in plan order.
func (w *Workflow) ExecutableTasks() []*Task {
	var out []*Task
	for i := range w.Tasks {
		t := &w.Tasks[i]
		if t.Status != TaskPending && t.Status != TaskReady {
			continue
		}
		if w.dependenciesCompleted(t) {
			out = append(out, t)
		}
	}
	return out
}

// MarkReady flags the currently executable tasks as ready and returns
// them. Controllers use it to surface the next wave before running it.
func (w *Workflow) MarkReady() []*Task {
	wave := w.ExecutableTasks()
	for _, t := range wave {
		t.Status = TaskReady
	}
	return wave
}

// AllCompleted reports whether every task completed successfully.
func (w *Workflow) AllCompleted() bool {
	for i := range w.Tasks {
		if w.Tasks[i].Status != TaskCompleted {
			return false
		}
	}
	return true
}

func (w *Workflow) dependenciesCompleted(t *Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := w.Task(dep)
		if !ok || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// Progress summarizes task counts by status.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Progress tallies the plan's tasks by status.
func (w *Workflow) Progress() Progress {
	p := Progress{Total: len(w.Tasks)}
	for i := range w.Tasks {
		switch w.Tasks[i].Status {
		case TaskPending:
			p.Pending++
		case TaskReady:
			p.Ready++
		case TaskRunning:
			p.Running++
		case TaskCompleted:
			p.Completed++
		case TaskFailed:
			p.Failed++
		}
	}
	return p
}
