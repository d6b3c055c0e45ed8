package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The typed errors below unwrap to these.
var (
	ErrInsufficientData        = errors.New("insufficient training data")
	ErrFeatureContractMismatch = errors.New("feature contract mismatch")
	ErrArtifactNotFound        = errors.New("artifact not found")
)

// InsufficientDataError reports a stage that cannot be trained after support filtering.
type InsufficientDataError struct {
	Taxonomy string
	Stage    string
	Examples int
	Classes  int
	// Dropped lists label classes removed by support filtering.
	Dropped []string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("%s/%s: %d examples across %d classes, need at least 2 of each",
		e.Taxonomy, e.Stage, e.Examples, e.Classes)
	if len(e.Dropped) > 0 {
		msg += fmt.Sprintf(" (dropped low-support classes: %s)", strings.Join(e.Dropped, ", "))
	}
	return msg
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// FeatureContractMismatchError reports a prediction batch missing features a stage was trained on.
type FeatureContractMismatchError struct {
	Stage   string
	Missing []string
}

func (e *FeatureContractMismatchError) Error() string {
	return fmt.Sprintf("stage %s: batch is missing features [%s]", e.Stage, strings.Join(e.Missing, ", "))
}

func (e *FeatureContractMismatchError) Unwrap() error {
	return ErrFeatureContractMismatch
}

// ArtifactNotFoundError reports a missing stage artifact or manifest.
type ArtifactNotFoundError struct {
	Taxonomy string
	Stage    string
	// Version is 0 when the latest version was requested.
	Version int
}

func (e *ArtifactNotFoundError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("no artifact for %s/%s", e.Taxonomy, e.Stage)
	}
	return fmt.Sprintf("no artifact for %s/%s version %d", e.Taxonomy, e.Stage, e.Version)
}

func (e *ArtifactNotFoundError) Unwrap() error {
	return ErrArtifactNotFound
}
