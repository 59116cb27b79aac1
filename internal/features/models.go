package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the scalar stored in a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindInt
	KindFloat
	KindString
)

// Value is a single typed scalar of a row: missing, integer, float or string.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Missing returns the explicit missing value.
func Missing() Value { return Value{} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float. NaN is treated as missing.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Missing()
	}
	return Value{kind: KindFloat, f: f}
}

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// Number converts a decoded JSON number, keeping integers integral.
func Number(n json.Number) Value {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Int(i)
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Str(text)
	}
	return Float(f)
}

// Kind reports which scalar the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float64 returns the numeric value, parsing strings when needed.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders the value the way the feature store stores it.
// Missing becomes the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// formatFloat prints the shortest round-trip form, keeping a ".0" suffix on
// integral values and switching to exponent form for very small or large magnitudes.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Field is one named value of a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is an ordered mapping from field name to value.
type Row struct {
	fields []Field
	index  map[string]int
}

// NewRow builds a row from fields; later duplicates overwrite earlier ones.
func NewRow(fields ...Field) Row {
	var r Row
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Set inserts or replaces a field, keeping the original position on replace.
// A plain copy of a Row shares storage with it; Clone before calling Set on a copy.
func (r *Row) Set(name string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Get returns the field value and whether the field exists.
func (r Row) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// Has reports whether the field exists.
func (r Row) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Delete removes a field if present. The row gets fresh storage, so copies
// of the row taken earlier are left untouched.
func (r *Row) Delete(name string) {
	i, ok := r.index[name]
	if !ok {
		return
	}
	fields := make([]Field, 0, len(r.fields)-1)
	fields = append(fields, r.fields[:i]...)
	fields = append(fields, r.fields[i+1:]...)

	index := make(map[string]int, len(fields))
	for j, f := range fields {
		index[f.Name] = j
	}
	r.fields = fields
	r.index = index
}

// Len returns the number of fields.
func (r Row) Len() int { return len(r.fields) }

// Names returns field names in order.
func (r Row) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in order.
func (r Row) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	return NewRow(r.fields...)
}

// WeatherObservation is the first day returned by the weather API for a city.
type WeatherObservation struct {
	City string
	Row  Row
}

// Pollutants reported by the air-quality API, in the order they are merged.
var Pollutants = []string{"pm10", "pm25", "no2", "so2", "co", "o3"}

// AirQualityObservation is the air-quality API reading for a city.
// Absent pollutants are held as Missing values.
type AirQualityObservation struct {
	City string
	Date string
	PM25 Value
	PM10 Value
	NO2  Value
	SO2  Value
	CO   Value
	O3   Value
}

// Pollutant returns the reading for a pollutant key such as "pm25".
func (a AirQualityObservation) Pollutant(name string) Value {
	switch name {
	case "pm25":
		return a.PM25
	case "pm10":
		return a.PM10
	case "no2":
		return a.NO2
	case "so2":
		return a.SO2
	case "co":
		return a.CO
	case "o3":
		return a.O3
	default:
		return Missing()
	}
}

// Identifier fields every feature record carries.
const (
	FieldEventTime = "event_time"
	FieldRecordID  = "record_id"
)

// FeatureRecord is the merged, normalized row written to the feature store.
type FeatureRecord struct {
	Row
}

// RecordID returns the record identifier, or "" if absent.
func (r FeatureRecord) RecordID() string {
	v, _ := r.Get(FieldRecordID)
	return v.String()
}

// EventTime returns the event time field, or "" if absent.
func (r FeatureRecord) EventTime() string {
	v, _ := r.Get(FieldEventTime)
	return v.String()
}

// FeatureValue is one (name, string value) pair of a stored record.
type FeatureValue struct {
	FeatureName   string `json:"featureName" bson:"feature_name"`
	ValueAsString string `json:"valueAsString" bson:"value_as_string"`
}

// WriteOutcome describes a successful put-record call.
type WriteOutcome struct {
	FeatureGroup string `json:"featureGroup"`
	RecordID     string `json:"recordId"`
	Fields       int    `json:"fields"`
}

// Metric is one data point handed to a MetricsSink.
type Metric struct {
	Name      string
	Value     float64
	Unit      string
	Timestamp time.Time
}

// Metric units.
const (
	UnitCount   = "Count"
	UnitSeconds = "Seconds"
)

// Status strings reported per city.
const (
	StatusSuccess = "success"
	statusFailed  = "failed: "
)

// CityResult is the outcome of one pipeline run for one city.
type CityResult struct {
	City        string        `json:"city"`
	Status      string        `json:"status"`
	Stage       Stage         `json:"stage"`
	FailedStage Stage         `json:"failedStage,omitempty"`
	RecordID    string        `json:"recordId,omitempty"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Succeeded reports whether the city reached DONE.
func (c CityResult) Succeeded() bool { return c.Err == nil }

// RunSummary aggregates the per-city results of one invocation.
type RunSummary struct {
	FeatureGroup string       `json:"featureGroup"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
	Results      []CityResult `json:"results"`
}

// Statuses returns the per-city "success" / "failed: <reason>" mapping.
func (s RunSummary) Statuses() map[string]string {
	out := make(map[string]string, len(s.Results))
	for _, r := range s.Results {
		out[r.City] = r.Status
	}
	return out
}

// Failures counts failed cities.
func (s RunSummary) Failures() int {
	n := 0
	for _, r := range s.Results {
		if !r.Succeeded() {
			n++
		}
	}
	return n
}
