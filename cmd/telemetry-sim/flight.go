package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

const metersPerDegree = 111_320.0

// flight produces a plausible circular flight path for one simulated device.
type flight struct {
	deviceID  string
	centerLat float64
	centerLon float64
	radius    float64 // meters
	altitude  float64 // meters
	period    time.Duration
	rng       *rand.Rand

	start time.Time
}

func newFlight(deviceID string, centerLat, centerLon float64, seed int64) *flight {
	rng := rand.New(rand.NewSource(seed))
	return &flight{
		deviceID:  deviceID,
		centerLat: centerLat + (rng.Float64()-0.5)*0.01,
		centerLon: centerLon + (rng.Float64()-0.5)*0.01,
		radius:    50 + rng.Float64()*150,
		altitude:  20 + rng.Float64()*60,
		period:    time.Duration(60+rng.Intn(120)) * time.Second,
		rng:       rng,
	}
}

// next returns the sample observed at now.
func (f *flight) next(now time.Time) model.Sample {
	if f.start.IsZero() {
		f.start = now
	}

	omega := 2 * math.Pi / f.period.Seconds()
	theta := omega * now.Sub(f.start).Seconds()

	// Tangential velocity on the circle, east = x, north = y.
	vx := -f.radius * omega * math.Sin(theta)
	vy := f.radius * omega * math.Cos(theta)
	vz := math.Sin(theta*3) * 0.5

	lat := f.centerLat + (f.radius*math.Sin(theta))/metersPerDegree
	lon := f.centerLon + (f.radius*math.Cos(theta))/(metersPerDegree*math.Cos(f.centerLat*math.Pi/180))

	horizontal := math.Hypot(vx, vy)
	heading := math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)

	return model.Sample{
		DeviceID:        f.deviceID,
		FormattedTime:   now.UTC().Format("2006-01-02 15:04:05.000"),
		Timestamp:       now.UnixMilli(),
		Latitude:        lat,
		Longitude:       lon,
		Pitch:           f.jitter(2),
		Yaw:             heading,
		Roll:            f.jitter(5),
		Speed:           math.Sqrt(horizontal*horizontal + vz*vz),
		Velocity:        model.Velocity{X: vx, Y: vy, Z: vz},
		HorizontalSpeed: horizontal,
		VerticalSpeed:   vz,
		FlightDirection: heading,
		GroundDistance:  f.altitude + math.Sin(theta)*5,
	}
}

func (f *flight) jitter(amplitude float64) float64 {
	return (f.rng.Float64()*2 - 1) * amplitude
}
