package features

import (
	"context"
	"log"
	"time"
)

// Stage is a state of the per-city pipeline.
type Stage string

const (
	StageStart           Stage = "START"
	StageFetchWeather    Stage = "FETCH_WEATHER"
	StageFetchAirQuality Stage = "FETCH_AIRQUALITY"
	StageNormalize       Stage = "NORMALIZE"
	StageValidate        Stage = "VALIDATE"
	StageWrite           Stage = "WRITE"
	StageDone            Stage = "DONE"
	StageFailed          Stage = "FAILED"
)

// stageMetric names the success/failure counters emitted when a stage finishes.
var stageMetric = map[Stage]string{
	StageFetchWeather:    "WeatherFetch",
	StageFetchAirQuality: "AirQualityFetch",
	StageNormalize:       "Normalization",
	StageValidate:        "Validation",
	StageWrite:           "FeatureStoreWrite",
}

// Dependencies are the collaborators a Pipeline is built from.
type Dependencies struct {
	Weather    WeatherSource
	AirQuality AirQualitySource
	Schema     SchemaProvider
	Records    RecordWriter
	Metrics    MetricsSink

	// Now and NewID default to time.Now and NewRecordID.
	Now   func() time.Time
	NewID func(time.Time) (string, error)
}

func (d Dependencies) check(featureGroup string) error {
	var missing []string
	if featureGroup == "" {
		missing = append(missing, "feature group")
	}
	if d.Weather == nil {
		missing = append(missing, "weather source")
	}
	if d.AirQuality == nil {
		missing = append(missing, "air quality source")
	}
	if d.Schema == nil {
		missing = append(missing, "schema provider")
	}
	if d.Records == nil {
		missing = append(missing, "record writer")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// Pipeline runs fetch, normalize, validate and write for one city.
// A Pipeline holds no state between runs other than its collaborators.
type Pipeline struct {
	featureGroup string
	weather      WeatherSource
	air          AirQualitySource
	normalizer   *Normalizer
	writer       *Writer
	metrics      MetricsSink
	now          func() time.Time
}

// NewPipeline validates the dependencies and builds a Pipeline.
func NewPipeline(featureGroup string, deps Dependencies) (*Pipeline, error) {
	if err := deps.check(featureGroup); err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		featureGroup: featureGroup,
		weather:      deps.Weather,
		air:          deps.AirQuality,
		normalizer:   NewNormalizer(featureGroup, deps.Schema, now, deps.NewID),
		writer:       NewWriter(featureGroup, deps.Records),
		metrics:      deps.Metrics,
		now:          now,
	}, nil
}

// Run processes one city. Failures are reported in the result, never returned.
func (p *Pipeline) Run(ctx context.Context, city string) CityResult {
	start := p.now()
	res := CityResult{City: city}

	fail := func(stage Stage, err error) CityResult {
		p.stageDone(ctx, stage, false)
		log.Printf("ERROR: pipeline: city=%q feature_group=%s stage=%s err=%v", city, p.featureGroup, stage, err)
		res.Stage = StageFailed
		res.FailedStage = stage
		res.Status = statusFailed + err.Error()
		res.Err = err
		res.Duration = p.now().Sub(start)
		p.emit(ctx, "PipelineDuration", res.Duration.Seconds(), UnitSeconds)
		return res
	}

	log.Printf("INFO: pipeline: city=%q stage=%s", city, StageFetchWeather)
	weather, err := p.weather.FetchWeather(ctx, city)
	if err != nil {
		return fail(StageFetchWeather, err)
	}
	p.stageDone(ctx, StageFetchWeather, true)

	log.Printf("INFO: pipeline: city=%q stage=%s", city, StageFetchAirQuality)
	air, err := p.air.FetchAirQuality(ctx, city)
	if err != nil {
		return fail(StageFetchAirQuality, err)
	}
	p.stageDone(ctx, StageFetchAirQuality, true)

	log.Printf("INFO: pipeline: city=%q stage=%s", city, StageNormalize)
	record, err := p.normalizer.Normalize(ctx, weather, air)
	if err != nil {
		return fail(StageNormalize, err)
	}
	p.stageDone(ctx, StageNormalize, true)

	log.Printf("INFO: pipeline: city=%q stage=%s fields=%d", city, StageValidate, record.Len())
	report := Validate(record)
	for _, name := range Checks {
		log.Printf("INFO: pipeline: city=%q check=%s passed=%t", city, name, report[name])
	}
	if failed := report.Failed(); len(failed) > 0 {
		p.emit(ctx, "ValidationFailedChecks", float64(len(failed)), UnitCount)
	}
	if err := checkError(report); err != nil {
		return fail(StageValidate, err)
	}
	p.stageDone(ctx, StageValidate, true)

	log.Printf("INFO: pipeline: city=%q stage=%s record_id=%s", city, StageWrite, record.RecordID())
	outcome, err := p.writer.Write(ctx, record)
	if err != nil {
		return fail(StageWrite, err)
	}
	p.stageDone(ctx, StageWrite, true)

	res.Stage = StageDone
	res.Status = StatusSuccess
	res.RecordID = outcome.RecordID
	res.Duration = p.now().Sub(start)
	p.emit(ctx, "PipelineDuration", res.Duration.Seconds(), UnitSeconds)
	log.Printf("INFO: pipeline: city=%q stage=%s record_id=%s fields=%d", city, StageDone, outcome.RecordID, outcome.Fields)
	return res
}

func (p *Pipeline) stageDone(ctx context.Context, stage Stage, ok bool) {
	name, found := stageMetric[stage]
	if !found {
		return
	}
	if ok {
		p.emit(ctx, name+"Success", 1, UnitCount)
	} else {
		p.emit(ctx, name+"Failure", 1, UnitCount)
	}
}

// emit sends a metric; a sink failure is logged and dropped.
func (p *Pipeline) emit(ctx context.Context, name string, value float64, unit string) {
	if p.metrics == nil {
		return
	}
	m := Metric{Name: name, Value: value, Unit: unit, Timestamp: p.now()}
	if err := p.metrics.Emit(ctx, m); err != nil {
		log.Printf("metrics: emit %s failed: %v", name, err)
	}
}
