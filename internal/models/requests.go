package models

import "time"

// GenerateReportRequest asks the engine to build a report over the most
// recent sprints of a team. SprintCount falls back to the configured default
// when zero.
type GenerateReportRequest struct {
	TeamID      string `json:"team_id"`
	SprintCount int    `json:"sprint_count,omitempty"`
	Async       bool   `json:"async,omitempty"`
}

// SyncRequest triggers a pull of sprint snapshots from the metrics provider.
type SyncRequest struct {
	TeamID      string `json:"team_id"`
	SprintCount int    `json:"sprint_count,omitempty"`
}

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskRevoked   TaskState = "revoked"
)

// TaskView is a point-in-time copy of a background task's status. Result and
// Error are only set in terminal states.
type TaskView struct {
	TaskID     string      `json:"task_id"`
	Kind       string      `json:"kind"`
	State      TaskState   `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// TaskAccepted is returned when a request is queued for background execution.
type TaskAccepted struct {
	TaskID string    `json:"task_id"`
	State  TaskState `json:"state"`
}
