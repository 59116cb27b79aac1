package features

// Validation check names, in report order.
const (
	CheckHasData          = "has_data"
	CheckNoMissingPM25    = "no_missing_pm25"
	CheckValidTemperature = "valid_temperature"
	CheckValidHumidity    = "valid_humidity"
	CheckValidPM25        = "valid_pm25"
)

// Checks lists every validation check in the order they are reported.
var Checks = []string{
	CheckHasData,
	CheckNoMissingPM25,
	CheckValidTemperature,
	CheckValidHumidity,
	CheckValidPM25,
}

// ValidationReport maps check name to outcome.
type ValidationReport map[string]bool

// Failed returns the names of failed checks in report order.
func (r ValidationReport) Failed() []string {
	var failed []string
	for _, name := range Checks {
		if ok, seen := r[name]; seen && !ok {
			failed = append(failed, name)
		}
	}
	return failed
}

// Passed reports whether every check succeeded.
func (r ValidationReport) Passed() bool {
	return len(r.Failed()) == 0
}

// Validate runs every check against the record. Nothing short-circuits: the
// report always holds all checks.
func Validate(rec FeatureRecord) ValidationReport {
	report := make(ValidationReport, len(Checks))

	report[CheckHasData] = rec.Len() > 0

	pm25, hasPM25 := rec.Get("pm25")
	report[CheckNoMissingPM25] = hasPM25 && !pm25.IsMissing()

	report[CheckValidTemperature] = inRangeIfPresent(rec, "temp", -50, 150)
	report[CheckValidHumidity] = inRangeIfPresent(rec, "humidity", 0, 100)
	report[CheckValidPM25] = inRangeIfPresent(rec, "pm25", 0, 500)

	return report
}

// inRangeIfPresent is true when the field is absent or missing, or numeric
// within [lo, hi]. A present non-numeric value fails.
func inRangeIfPresent(rec FeatureRecord, name string, lo, hi float64) bool {
	v, ok := rec.Get(name)
	if !ok || v.IsMissing() {
		return true
	}
	f, ok := v.Float64()
	if !ok {
		return false
	}
	return f >= lo && f <= hi
}

// checkError turns a failed report into a DataQualityError, or nil.
func checkError(report ValidationReport) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &DataQualityError{Failed: failed, Report: report}
}
