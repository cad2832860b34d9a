package polar

import "context"

// Endpoint identifies one upstream data type. The set is closed; sync and
// analytics dispatch on these constants, never on free-form strings.
type Endpoint string

const (
	EndpointSleep              Endpoint = "sleep"
	EndpointRecharge           Endpoint = "recharge"
	EndpointActivity           Endpoint = "activity"
	EndpointExercises          Endpoint = "exercises"
	EndpointCardioLoad         Endpoint = "cardio_load"
	EndpointSleepwiseAlertness Endpoint = "sleepwise_alertness"
	EndpointSleepwiseBedtime   Endpoint = "sleepwise_bedtime"
	EndpointSpO2               Endpoint = "spo2"
	EndpointECG                Endpoint = "ecg"
	EndpointBodyTemperature    Endpoint = "body_temperature"
	EndpointSkinTemperature    Endpoint = "skin_temperature"
)

// AllEndpoints lists every endpoint a full sync attempts, in fetch order
var AllEndpoints = []Endpoint{
	EndpointSleep,
	EndpointRecharge,
	EndpointActivity,
	EndpointExercises,
	EndpointCardioLoad,
	EndpointSleepwiseAlertness,
	EndpointSleepwiseBedtime,
	EndpointSpO2,
	EndpointECG,
	EndpointBodyTemperature,
	EndpointSkinTemperature,
}

// Metric names form a closed vocabulary shared by sync and analytics
const (
	MetricSleepScore         = "sleep_score"
	MetricHRVRMSSD           = "hrv_rmssd"
	MetricRestingHR          = "resting_hr"
	MetricActivitySteps      = "activity_steps"
	MetricActivityCalories   = "activity_calories"
	MetricExerciseMinutes    = "exercise_minutes"
	MetricTrainingLoad       = "training_load"
	MetricTrainingLoadRatio  = "training_load_ratio"
	MetricAlertness          = "alertness"
	MetricBedtimeConsistency = "bedtime_consistency"
	MetricSpO2               = "spo2"
	MetricECGHeartRate       = "ecg_heart_rate"
	MetricBodyTemperature    = "body_temperature"
	MetricSkinTemperature    = "skin_temperature"
)

// AllMetrics lists the full metric vocabulary
var AllMetrics = []string{
	MetricSleepScore,
	MetricHRVRMSSD,
	MetricRestingHR,
	MetricActivitySteps,
	MetricActivityCalories,
	MetricExerciseMinutes,
	MetricTrainingLoad,
	MetricTrainingLoadRatio,
	MetricAlertness,
	MetricBedtimeConsistency,
	MetricSpO2,
	MetricECGHeartRate,
	MetricBodyTemperature,
	MetricSkinTemperature,
}

// EndpointMetrics maps each endpoint to the metrics its records produce.
// Built once; treated as read-only.
var EndpointMetrics = map[Endpoint][]string{
	EndpointSleep:              {MetricSleepScore},
	EndpointRecharge:           {MetricHRVRMSSD, MetricRestingHR},
	EndpointActivity:           {MetricActivitySteps, MetricActivityCalories},
	EndpointExercises:          {MetricExerciseMinutes},
	EndpointCardioLoad:         {MetricTrainingLoad, MetricTrainingLoadRatio},
	EndpointSleepwiseAlertness: {MetricAlertness},
	EndpointSleepwiseBedtime:   {MetricBedtimeConsistency},
	EndpointSpO2:               {MetricSpO2},
	EndpointECG:                {MetricECGHeartRate},
	EndpointBodyTemperature:    {MetricBodyTemperature},
	EndpointSkinTemperature:    {MetricSkinTemperature},
}

// Sample is one day's worth of data from one endpoint, already reduced to
// the metric vocabulary above
type Sample struct {
	Date    string // YYYY-MM-DD
	Metrics map[string]float64
}

// Fetcher performs one upstream call for one endpoint.
// Implementations classify failures as *Error (see errors.go).
type Fetcher interface {
	Fetch(ctx context.Context, endpoint Endpoint, accessToken string) ([]Sample, error)
}
