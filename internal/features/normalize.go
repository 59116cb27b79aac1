package features

import (
	"context"
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// droppedFields are descriptive or redundant columns that are never model inputs.
var droppedFields = []string{
	"name", "description", "icon", "stations",
	"sunrise", "sunset", "severerisk", "preciptype",
	"pm10", "o3", "no2", "so2", "co",
}

// integerFields are parsed as float and truncated; unparsable values become 0.
var integerFields = []string{
	"precipprob", "snow", "snowdepth", "winddir", "cloudcover", "visibility", "uvindex",
}

// floatFields are parsed as float and rounded to two decimals; unparsable values become 0.0.
var floatFields = []string{
	"temp", "tempmax", "tempmin",
	"feelslike", "feelslikemax", "feelslikemin",
	"humidity", "precip", "windspeed", "windgust",
	"dew", "solarradiation", "solarenergy", "moonphase",
}

// conditionCodes maps weather condition labels to ordinal codes. Anything else is 0.
var conditionCodes = map[string]int64{
	"Clear":                  1,
	"Partially cloudy":       2,
	"Rain, Partially cloudy": 3,
	"Rain":                   4,
	"Overcast":               5,
	"Rain, Overcast":         6,
}

// NewRecordID returns a time-ordered UUIDv7 string.
func NewRecordID(_ time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Normalizer merges a weather and an air-quality observation into a FeatureRecord.
type Normalizer struct {
	featureGroup string
	schema       SchemaProvider
	now          func() time.Time
	newID        func(time.Time) (string, error)
}

// NewNormalizer creates a Normalizer. now and newID default to time.Now and NewRecordID.
func NewNormalizer(featureGroup string, schema SchemaProvider, now func() time.Time, newID func(time.Time) (string, error)) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = NewRecordID
	}
	return &Normalizer{
		featureGroup: featureGroup,
		schema:       schema,
		now:          now,
		newID:        newID,
	}
}

// Normalize joins the two observations, coerces types, adds identifiers and keeps
// only the fields the feature group's schema knows.
func (n *Normalizer) Normalize(ctx context.Context, weather WeatherObservation, air AirQualityObservation) (FeatureRecord, error) {
	if weather.Row.Len() == 0 {
		return FeatureRecord{}, &NormalizationError{Reason: "join produced zero rows"}
	}

	merged := mergeObservations(weather, air)

	for _, name := range droppedFields {
		merged.Delete(name)
	}

	for _, name := range integerFields {
		if v, ok := merged.Get(name); ok {
			merged.Set(name, coerceInt(v))
		}
	}
	for _, name := range floatFields {
		if v, ok := merged.Get(name); ok {
			merged.Set(name, coerceFloat(v))
		}
	}
	if v, ok := merged.Get("pm25"); ok {
		merged.Set("pm25", coercePM25(v))
	}
	if v, ok := merged.Get("conditions"); ok {
		merged.Set("conditions", coerceCondition(v))
	}

	now := n.now()
	if !merged.Has(FieldEventTime) {
		merged.Set(FieldEventTime, Int(now.Unix()))
	}
	if !merged.Has(FieldRecordID) {
		id, err := n.newID(now)
		if err != nil {
			return FeatureRecord{}, &NormalizationError{Reason: "cannot build record_id", Err: err}
		}
		if id == "" {
			return FeatureRecord{}, &NormalizationError{Reason: "cannot build record_id", Err: errors.New("empty id")}
		}
		merged.Set(FieldRecordID, Str(id))
	}

	if n.schema == nil {
		return FeatureRecord{}, &NormalizationError{Reason: "no schema provider configured"}
	}
	allowed, err := n.schema.AllowedFields(ctx, n.featureGroup)
	if err != nil {
		return FeatureRecord{}, &NormalizationError{Reason: "describe feature group " + n.featureGroup, Err: err}
	}

	var out FeatureRecord
	for _, f := range merged.Fields() {
		if _, ok := allowed[f.Name]; ok {
			out.Set(f.Name, f.Value)
		}
	}
	return out, nil
}

// mergeObservations lays the weather fields out first, then the air-quality columns.
// The air-quality date is the join key and replaces the weather date.
func mergeObservations(weather WeatherObservation, air AirQualityObservation) Row {
	var merged Row
	for _, f := range weather.Row.Fields() {
		name := f.Name
		if name == "datetime" {
			name = "date"
		}
		merged.Set(name, f.Value)
	}

	if air.Date != "" {
		if wd, ok := merged.Get("date"); ok && wd.String() != "" && wd.String() != air.Date {
			log.Printf("pipeline: city=%s weather date %s differs from air quality date %s; using air quality date",
				air.City, wd.String(), air.Date)
		}
		merged.Set("date", Str(air.Date))
	}
	if air.City != "" {
		merged.Set("city", Str(air.City))
	}
	for _, p := range Pollutants {
		merged.Set(p, air.Pollutant(p))
	}
	return merged
}

func coerceInt(v Value) Value {
	f, ok := v.Float64()
	if !ok {
		return Int(0)
	}
	i, ok := truncInt64(f)
	if !ok {
		return Int(0)
	}
	return Int(i)
}

// truncInt64 truncates f toward zero, failing when the result does not fit an int64.
func truncInt64(f float64) (int64, bool) {
	t := math.Trunc(f)
	if math.IsNaN(t) || t >= math.MaxInt64 || t < math.MinInt64 {
		return 0, false
	}
	return int64(t), true
}

func coerceFloat(v Value) Value {
	f, ok := v.Float64()
	if !ok || math.IsInf(f, 0) {
		return Float(0)
	}
	return Float(round2(f))
}

// round2 rounds to two decimals on the exact binary value.
func round2(f float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 2, 64), 64)
	if err != nil {
		return f
	}
	return r
}

func coercePM25(v Value) Value {
	text := strings.TrimSpace(v.String())
	if text == "" {
		return Missing()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Missing()
	}
	i, ok := truncInt64(f)
	if !ok {
		return Missing()
	}
	return Int(i)
}

func coerceCondition(v Value) Value {
	if v.Kind() != KindString {
		return Int(0)
	}
	return Int(conditionCodes[v.String()])
}
