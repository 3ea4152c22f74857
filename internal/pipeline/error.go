package pipeline

import (
	"errors"
	"fmt"
)

const (
	StageConfig  Stage = "config"
	StageLoad    Stage = "load"
	StageExtract Stage = "extract"
	StageAverage Stage = "average"
	StageDecibel Stage = "decibel"
	StageExport  Stage = "export"
)

var errNoExtractor = errors.New("no power extractor configured")

// Stage names a step of the processing chain.
type Stage string

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
