package model

import (
	"encoding/json"
	"time"
)

// Velocity is the velocity vector reported by a device.
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample captures a single telemetry reading published by a device.
type Sample struct {
	DeviceID        string   `json:"deviceId"`
	FormattedTime   string   `json:"formattedTime"`
	Timestamp       int64    `json:"timestamp"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	Pitch           float64  `json:"pitch"`
	Yaw             float64  `json:"yaw"`
	Roll            float64  `json:"roll"`
	Speed           float64  `json:"speed"`
	Velocity        Velocity `json:"velocity"`
	HorizontalSpeed float64  `json:"horizontalSpeed"`
	VerticalSpeed   float64  `json:"verticalSpeed"`
	FlightDirection float64  `json:"flightDirection"`
	GroundDistance  float64  `json:"groundDistance"`
}

// StoredRecord extends Sample with the fields assigned by the store on insert.
type StoredRecord struct {
	ID int64 `json:"id"`
	Sample
	CreatedAt time.Time `json:"createdAt"`
}

// Payload is the untrusted wire form of a Sample. The timestamp is kept raw
// until validation so a missing value can be told apart from a malformed one.
type Payload struct {
	DeviceID        string          `json:"deviceId"`
	FormattedTime   string          `json:"formattedTime"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	Pitch           float64         `json:"pitch"`
	Yaw             float64         `json:"yaw"`
	Roll            float64         `json:"roll"`
	Speed           float64         `json:"speed"`
	Velocity        Velocity        `json:"velocity"`
	HorizontalSpeed float64         `json:"horizontalSpeed"`
	VerticalSpeed   float64         `json:"verticalSpeed"`
	FlightDirection float64         `json:"flightDirection"`
	GroundDistance  float64         `json:"groundDistance"`
}

// PayloadFrom converts a typed sample back into its wire form.
func PayloadFrom(s Sample) Payload {
	ts, _ := json.Marshal(s.Timestamp)
	return Payload{
		DeviceID:        s.DeviceID,
		FormattedTime:   s.FormattedTime,
		Timestamp:       ts,
		Latitude:        s.Latitude,
		Longitude:       s.Longitude,
		Pitch:           s.Pitch,
		Yaw:             s.Yaw,
		Roll:            s.Roll,
		Speed:           s.Speed,
		Velocity:        s.Velocity,
		HorizontalSpeed: s.HorizontalSpeed,
		VerticalSpeed:   s.VerticalSpeed,
		FlightDirection: s.FlightDirection,
		GroundDistance:  s.GroundDistance,
	}
}
