package pipeline

import "time"

// Stage names one pipeline step. Stages always run in the order parse,
// analyze, suggest, render.
type Stage string

const (
	StageParse   Stage = "parse"
	StageAnalyze Stage = "analyze"
	StageSuggest Stage = "suggest"
	StageRender  Stage = "render"
)

var stageOrder = []Stage{StageParse, StageAnalyze, StageSuggest, StageRender}

// StageState is the lifecycle of one stage within a run.
type StageState string

const (
	StagePending   StageState = "pending"
	StageRunning   StageState = "running"
	StageSucceeded StageState = "succeeded"
	StageFailed    StageState = "failed"
)

// StageRecord captures what happened to one stage. A stage served from
// the cache still records Succeeded, with CacheHit set.
type StageRecord struct {
	Stage       Stage      `json:"stage"`
	State       StageState `json:"state"`
	CacheHit    bool       `json:"cacheHit,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  float64    `json:"durationMs,omitempty"`
}

// RunState is the coarse state of a whole review run. It only ever moves
// forward; a failed stage pins the run at failed.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunParsing    RunState = "parsing"
	RunAnalyzing  RunState = "analyzing"
	RunSuggesting RunState = "suggesting"
	RunRendering  RunState = "rendering"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

func runStateFor(stage Stage) RunState {
	switch stage {
	case StageParse:
		return RunParsing
	case StageAnalyze:
		return RunAnalyzing
	case StageSuggest:
		return RunSuggesting
	default:
		return RunRendering
	}
}
