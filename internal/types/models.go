package types

import (
	"errors"
	"fmt"
	"time"
)

// Stage is the pipeline position of a Job.
type Stage string

const (
	StageReceived     Stage = "received"
	StageConverting   Stage = "converting"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

// ErrInvalidTransition is returned when a Job is moved out of order or after a terminal state.
var ErrInvalidTransition = errors.New("invalid job transition")

// Job is one upload moving through the pipeline. It is owned by a single request and
// mutated only through the transition methods below.
type Job struct {
	ID              string    `json:"job_id"`
	OriginalName    string    `json:"original_name"`
	SourcePath      string    `json:"source_path"`
	AudioPath       string    `json:"audio_path,omitempty"`
	DurationSeconds float64   `json:"duration_sec,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Stage           Stage     `json:"stage"`
	FailedStage     Stage     `json:"failed_stage,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewJob returns a job in state Received.
func NewJob(id, originalName, sourcePath string) *Job {
	return &Job{
		ID:           id,
		OriginalName: originalName,
		SourcePath:   sourcePath,
		Stage:        StageReceived,
		CreatedAt:    time.Now().UTC(),
	}
}

// IsTerminal reports whether the job reached Complete or Failed.
func (j *Job) IsTerminal() bool {
	return j.Stage == StageComplete || j.Stage == StageFailed
}

// BeginConversion marks the start of audio extraction.
func (j *Job) BeginConversion() error {
	return j.advance(StageReceived, StageConverting)
}

// ConversionDone records the extracted audio and its duration and moves the job
// on to transcription. A non-positive duration is rejected.
func (j *Job) ConversionDone(audioPath string, durationSeconds float64) error {
	if audioPath == "" {
		return fmt.Errorf("%w: empty audio path", ErrInvalidTransition)
	}
	if !(durationSeconds > 0) {
		return fmt.Errorf("%w: duration %v is not positive", ErrInvalidTransition, durationSeconds)
	}
	if err := j.advance(StageConverting, StageTranscribing); err != nil {
		return err
	}
	j.AudioPath = audioPath
	j.DurationSeconds = durationSeconds
	return nil
}

// TranscriptionDone records the transcript and moves the job on to summarization.
func (j *Job) TranscriptionDone(transcript string) error {
	if transcript == "" {
		return fmt.Errorf("%w: empty transcript", ErrInvalidTransition)
	}
	if err := j.advance(StageTranscribing, StageSummarizing); err != nil {
		return err
	}
	j.Transcript = transcript
	return nil
}

// SummaryDone records the summary and completes the job.
func (j *Job) SummaryDone(summary string) error {
	if !(j.DurationSeconds > 0) {
		return fmt.Errorf("%w: cannot complete without a positive duration", ErrInvalidTransition)
	}
	if err := j.advance(StageSummarizing, StageComplete); err != nil {
		return err
	}
	j.Summary = summary
	return nil
}

// Fail moves a running job to Failed, remembering the stage it failed in.
func (j *Job) Fail(err error) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, StageFailed)
	}
	j.FailedStage = j.Stage
	j.Stage = StageFailed
	if err != nil {
		j.FailureReason = err.Error()
	} else {
		j.FailureReason = "unknown failure"
	}
	return nil
}

func (j *Job) advance(from, to Stage) error {
	if j.Stage != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, to)
	}
	j.Stage = to
	return nil
}

// stageOrder ranks non-failed stages for monotonicity checks.
var stageOrder = map[Stage]int{
	StageReceived:     0,
	StageConverting:   1,
	StageTranscribing: 2,
	StageSummarizing:  3,
	StageComplete:     4,
}

// Reached reports whether the job is at or past s. Failed jobs report false for every stage.
func (j *Job) Reached(s Stage) bool {
	cur, ok := stageOrder[j.Stage]
	if !ok {
		return false
	}
	want, ok := stageOrder[s]
	return ok && cur >= want
}

// Result is the success payload returned to the caller.
type Result struct {
	AudioURL      string            `json:"audioUrl"`
	Transcription string            `json:"transcription"`
	Summary       string            `json:"summary"`
	DurationSec   float64           `json:"durationSec"`
	Reports       map[string]string `json:"reports,omitempty"`
}

// ErrorResponse is the only body sent on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
