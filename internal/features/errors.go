package features

import (
	"fmt"
	"strings"
)

// UpstreamFetchError reports a weather or air-quality call that failed after retries.
type UpstreamFetchError struct {
	Source     string
	City       string
	StatusCode int // 0 when the call never got a response
	Attempts   int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	msg := fmt.Sprintf("%s fetch for %q failed", e.Source, e.City)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// NormalizationError reports data that could not be merged into a feature record.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalization failed: %s: %v", e.Reason, e.Err)
	}
	return "normalization failed: " + e.Reason
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// DataQualityError lists the validation checks a record failed.
type DataQualityError struct {
	Failed []string
	Report ValidationReport
}

func (e *DataQualityError) Error() string {
	quoted := make([]string, len(e.Failed))
	for i, name := range e.Failed {
		quoted[i] = "'" + name + "'"
	}
	return "Data quality validation failed for: [" + strings.Join(quoted, ", ") + "]"
}

// StoreWriteError reports a failed put-record call.
type StoreWriteError struct {
	FeatureGroup string
	RecordID     string
	Err          error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("write record %s to feature group %s: %v", e.RecordID, e.FeatureGroup, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ConfigurationError reports required settings missing before any stage runs.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Reason != "":
		return "missing required configuration: " + strings.Join(e.Missing, ", ") + "; " + e.Reason
	case len(e.Missing) > 0:
		return "missing required configuration: " + strings.Join(e.Missing, ", ")
	default:
		return "invalid configuration: " + e.Reason
	}
}
