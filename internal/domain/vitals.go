package domain

import "time"

const (
	HighHeartRateThreshold = 100
	LowOxygenThreshold     = 95
)

const (
	AlertHighHeartRate = "high_heart_rate"
	AlertLowOxygen     = "low_oxygen"
)

// Reading is one bundle of vital signs reported by a producer.
type Reading struct {
	HeartRate   int     `json:"heartRate"`
	OxygenLevel int     `json:"oxygenLevel"`
	Temperature float64 `json:"temperature"`
	Note        *string `json:"note,omitempty"`
}

// Alerts returns the threshold alerts raised by this reading, if any.
func (r Reading) Alerts() []string {
	var alerts []string
	if r.HeartRate > HighHeartRateThreshold {
		alerts = append(alerts, AlertHighHeartRate)
	}
	if r.OxygenLevel < LowOxygenThreshold {
		alerts = append(alerts, AlertLowOxygen)
	}
	return alerts
}

// MeasurementEvent is a transient vitals report relayed to observers.
type MeasurementEvent struct {
	ProducerID string `json:"patientId"`
	Reading
	Timestamp time.Time `json:"timestamp"`
	Alerts    []string  `json:"alerts,omitempty"`
}

func (MeasurementEvent) EventName() string { return "measurement" }
