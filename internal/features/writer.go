package features

import (
	"context"
	"errors"
)

var errNoRecordWriter = errors.New("no record writer configured")

// Writer sends a validated FeatureRecord to the feature store in one call.
type Writer struct {
	featureGroup string
	store        RecordWriter
}

// NewWriter creates a Writer for a feature group.
func NewWriter(featureGroup string, store RecordWriter) *Writer {
	return &Writer{featureGroup: featureGroup, store: store}
}

// ToFeatureValues flattens a record into (name, string value) pairs.
// Missing values become "".
func ToFeatureValues(rec FeatureRecord) []FeatureValue {
	fields := rec.Fields()
	out := make([]FeatureValue, 0, len(fields))
	for _, f := range fields {
		out = append(out, FeatureValue{FeatureName: f.Name, ValueAsString: f.Value.String()})
	}
	return out
}

// Write issues a single put-record call. It does not retry.
func (w *Writer) Write(ctx context.Context, rec FeatureRecord) (WriteOutcome, error) {
	if w.store == nil {
		return WriteOutcome{}, &StoreWriteError{FeatureGroup: w.featureGroup, RecordID: rec.RecordID(), Err: errNoRecordWriter}
	}

	values := ToFeatureValues(rec)
	if err := w.store.PutRecord(ctx, w.featureGroup, values); err != nil {
		return WriteOutcome{}, &StoreWriteError{FeatureGroup: w.featureGroup, RecordID: rec.RecordID(), Err: err}
	}

	return WriteOutcome{
		FeatureGroup: w.featureGroup,
		RecordID:     rec.RecordID(),
		Fields:       len(values),
	}, nil
}
