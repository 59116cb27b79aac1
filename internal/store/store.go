package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/i474232898/air-quality-features/internal/features"
)

var (
	// ErrNotFound is returned when a record or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFeatureGroupNotFound is returned when a feature group has no definitions.
	ErrFeatureGroupNotFound = errors.New("feature group not found")
	// ErrMissingRecordID is returned for records without a record_id value.
	ErrMissingRecordID = errors.New("record has no record_id")
	// ErrUnknownFeature is returned when a record names a feature outside the group's schema.
	ErrUnknownFeature = errors.New("feature not defined in feature group")
)

// recordIdentity extracts record_id and event_time from a record.
func recordIdentity(values []features.FeatureValue) (string, float64, error) {
	var id string
	var eventTime float64
	for _, v := range values {
		switch v.FeatureName {
		case features.FieldRecordID:
			id = v.ValueAsString
		case features.FieldEventTime:
			if f, err := strconv.ParseFloat(v.ValueAsString, 64); err == nil {
				eventTime = f
			}
		}
	}
	if id == "" {
		return "", 0, ErrMissingRecordID
	}
	return id, eventTime, nil
}

// checkFeatures ensures every feature name is part of the allowed set.
func checkFeatures(group string, allowed map[string]struct{}, values []features.FeatureValue) error {
	for _, v := range values {
		if _, ok := allowed[v.FeatureName]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnknownFeature, v.FeatureName, group)
		}
	}
	return nil
}

func toSet(definitions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(definitions))
	for _, d := range definitions {
		set[d] = struct{}{}
	}
	return set
}
