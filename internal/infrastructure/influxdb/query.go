package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// latestLookback bounds how far back LatestSensorValue searches.
const latestLookback = 30 * 24 * time.Hour

// LatestSensorValue returns the most recent reading of a sensor, either the
// numeric value (float64) or the text value, whichever was written last.
// It returns ErrNoData when the sensor has no readings in the lookback window.
func (c *Client) LatestSensorValue(ctx context.Context, sensorID string) (any, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}

	result, err := c.queryAPI.Query(ctx, latestReadingQuery(c.cfg.Bucket, sensorID, latestLookback))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var (
		latest   any
		latestAt time.Time
		found    bool
	)
	for result.Next() {
		rec := result.Record()
		if !found || rec.Time().After(latestAt) {
			latest, latestAt, found = rec.Value(), rec.Time(), true
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: sensor %s", ErrNoData, sensorID)
	}
	return latest, nil
}

// latestReadingQuery builds the Flux query for the last value and text
// sample of one sensor.
func latestReadingQuery(bucket, sensorID string, lookback time.Duration) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %s and r.sensor_id == %s)
  |> filter(fn: (r) => r._field == %s or r._field == %s)
  |> last()`,
		fluxString(bucket),
		int64(lookback.Seconds()),
		fluxString(MeasurementSensorReadings),
		fluxString(sensorID),
		fluxString(FieldValue),
		fluxString(FieldText),
	)
}

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)
	return `"` + r.Replace(s) + `"`
}
