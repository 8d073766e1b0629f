package cluster

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumns is matched by *MissingColumnsError.
	ErrMissingColumns = errors.New("missing columns")
	// ErrNoFeatures is returned when the feature list is empty.
	ErrNoFeatures = errors.New("no feature columns selected")
	// ErrInvalidK is returned when the cluster count is outside the configured range.
	ErrInvalidK = errors.New("cluster count out of range")
	// ErrDegenerateInput is returned when there are too few rows for the requested step.
	ErrDegenerateInput = errors.New("not enough rows")
	// ErrInsufficientClusters is returned by Score when fewer than 2 distinct labels exist.
	ErrInsufficientClusters = errors.New("insufficient clusters: need at least 2 distinct labels")
	// ErrArtifactMissing is returned when a scaler or model file does not exist.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrArtifactIncompatible is returned when artifacts do not match the feature set.
	ErrArtifactIncompatible = errors.New("artifact incompatible")
)

// MissingColumnsError lists the requested columns absent from a table.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrMissingColumns
func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}
