package models

// TaskState is the server-reported lifecycle state of a remote task.
type TaskState string

const (
	TaskNotStarted TaskState = "NOT_STARTED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskComplete   TaskState = "COMPLETE"
	TaskCancelling TaskState = "CANCELLING"
	TaskCancelled  TaskState = "CANCELLED"
)

// Terminal reports whether no further transitions can happen.
func (s TaskState) Terminal() bool {
	return s == TaskComplete || s == TaskCancelled
}

// TaskParameters is the body of a task creation request.
type TaskParameters struct {
	LocaleName        string             `json:"localeName"`
	MappingParameters []MappingParameter `json:"mappingParameters,omitempty"`
}

// MappingParameter resolves a runtime prompt of an import or export.
type MappingParameter struct {
	EntityType string `json:"entityType"`
	EntityName string `json:"entityName"`
}

// Actor identifies a user.
type Actor struct {
	ID   string `json:"guid"`
	Name string `json:"name,omitempty"`
}

// TaskStatus is a point-in-time snapshot of a remote task.
type TaskStatus struct {
	TaskID      string      `json:"taskId"`
	TaskState   TaskState   `json:"taskState"`
	Progress    float64     `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	CancelledBy *Actor      `json:"cancelledBy,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
}

// TaskResponse wraps a task snapshot returned by the task endpoints.
type TaskResponse struct {
	Task *TaskStatus `json:"task"`
}

// TaskResult is the (possibly nested) outcome payload of a completed task.
type TaskResult struct {
	Successful           bool           `json:"successful"`
	ObjectID             string         `json:"objectId,omitempty"`
	ObjectName           string         `json:"objectName,omitempty"`
	FailureDumpAvailable bool           `json:"failureDumpAvailable"`
	Details              []ResultDetail `json:"details,omitempty"`
	NestedResults        []TaskResult   `json:"nestedResults,omitempty"`
}

// ResultDetail is one typed message attached to a result.
type ResultDetail struct {
	Type             string            `json:"type"`
	Values           map[string]string `json:"values,omitempty"`
	LocalMessageText string            `json:"localMessageText"`
	Occurrences      int               `json:"occurrences"`
}
