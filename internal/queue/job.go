package queue

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotFailed = errors.New("job is not in failed state")
)

// JobState is where a job currently sits in its queue.
type JobState int

const (
	StateUnknown JobState = iota
	StateWaiting
	StateActive
	StateDelayed
	StateCompleted
	StateFailed
)

var stateNames = map[JobState]string{
	StateUnknown:   "unknown",
	StateWaiting:   "waiting",
	StateActive:    "active",
	StateDelayed:   "delayed",
	StateCompleted: "completed",
	StateFailed:    "failed",
}

func (s JobState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func parseState(s string) JobState {
	for state, name := range stateNames {
		if name == s {
			return state
		}
	}
	return StateUnknown
}

// JobOptions is the retry policy attached to a job when it is added.
type JobOptions struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `json:"attempts"`
	// Backoff is the fixed delay before a failed attempt is tried again.
	Backoff          time.Duration `json:"backoff"`
	RemoveOnComplete bool          `json:"removeOnComplete"`
}

func (o JobOptions) normalized() JobOptions {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	return o
}

// Job is a unit of work stored in a queue.
type Job struct {
	ID           string          `json:"id"`
	Queue        Name            `json:"queue"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Opts         JobOptions      `json:"opts"`
	State        JobState        `json:"state"`
	AttemptsMade int             `json:"attemptsMade"`
	FailedReason string          `json:"failedReason,omitempty"`
	Stacktrace   []string        `json:"stacktrace,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	ProcessedOn  *time.Time      `json:"processedOn,omitempty"`
	FinishedOn   *time.Time      `json:"finishedOn,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Data, v)
}

// Counts is the number of jobs per state.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

const (
	fieldName         = "name"
	fieldData         = "data"
	fieldOpts         = "opts"
	fieldState        = "state"
	fieldAttemptsMade = "attemptsMade"
	fieldFailedReason = "failedReason"
	fieldStacktrace   = "stacktrace"
	fieldTimestamp    = "timestamp"
	fieldProcessedOn  = "processedOn"
	fieldFinishedOn   = "finishedOn"
)

func jobFromHash(queue Name, id string, h map[string]string) (*Job, error) {
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	job := &Job{
		ID:           id,
		Queue:        queue,
		Name:         h[fieldName],
		Data:         json.RawMessage(h[fieldData]),
		State:        parseState(h[fieldState]),
		FailedReason: h[fieldFailedReason],
		Timestamp:    msToTime(h[fieldTimestamp]),
	}
	if len(job.Data) == 0 {
		job.Data = json.RawMessage("null")
	}
	if raw := h[fieldOpts]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Opts); err != nil {
			return nil, err
		}
	}
	if raw := h[fieldStacktrace]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Stacktrace); err != nil {
			return nil, err
		}
	}
	job.AttemptsMade, _ = strconv.Atoi(h[fieldAttemptsMade])
	if t := msToTime(h[fieldProcessedOn]); !t.IsZero() {
		job.ProcessedOn = &t
	}
	if t := msToTime(h[fieldFinishedOn]); !t.IsZero() {
		job.FinishedOn = &t
	}
	return job, nil
}

func msToTime(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
