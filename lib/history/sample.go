package history

import (
	"fmt"
	"math"
)

// TimestampLayout is the wall-clock format used in samples and the data log.
const TimestampLayout = "2006-01-02 15:04:05"

// TimestampUnavailable stands in for the timestamp when the clock is not synced.
const TimestampUnavailable = "N/A"

// Sample is one timestamped temperature/humidity observation.
type Sample struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func (s Sample) String() string {
	return fmt.Sprintf("%s temp=%.1fC humidity=%.1f%%", s.Timestamp, s.Temperature, s.Humidity)
}

// Round1 rounds to one decimal place, the precision readings are stored with.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
