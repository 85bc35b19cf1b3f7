package query

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

// Params are the optional inputs of the read endpoint.
type Params struct {
	DeviceID  string
	Limit     int
	StartTime *int64
	EndTime   *int64
}

// Result is the read endpoint response: the records plus the echoed parameters.
type Result struct {
	Mode      string               `json:"mode"`
	Data      []model.StoredRecord `json:"data"`
	Count     int                  `json:"count"`
	DeviceID  string               `json:"deviceId,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	StartTime *int64               `json:"startTime,omitempty"`
	EndTime   *int64               `json:"endTime,omitempty"`
}

// ParamsFromQuery reads deviceId, limit, startTime and endTime from URL values.
// Values that are present but not integers are validation errors.
func ParamsFromQuery(v url.Values) (Params, error) {
	p := Params{DeviceID: v.Get("deviceId")}

	if raw := strings.TrimSpace(v.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, model.Invalid("limit", "must be an integer")
		}
		p.Limit = n
	}

	var err error
	if p.StartTime, err = optionalInt(v, "startTime"); err != nil {
		return Params{}, err
	}
	if p.EndTime, err = optionalInt(v, "endTime"); err != nil {
		return Params{}, err
	}
	return p, nil
}

func optionalInt(v url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, model.Invalid(key, "must be an integer")
	}
	return &n, nil
}

// Resolve picks the query mode from the supplied parameters:
// deviceId with both bounds is a range query, deviceId alone is a
// latest-for-device query, and no deviceId is a latest-across-devices query.
func (s *Service) Resolve(ctx context.Context, p Params) (Result, error) {
	var (
		res Result
		err error
	)

	switch {
	case p.DeviceID != "" && p.StartTime != nil && p.EndTime != nil:
		res = Result{Mode: ModeRange, DeviceID: p.DeviceID, StartTime: p.StartTime, EndTime: p.EndTime}
		res.Data, err = s.Range(ctx, p.DeviceID, *p.StartTime, *p.EndTime)
	case p.DeviceID != "":
		res = Result{Mode: ModeLatestForDevice, DeviceID: p.DeviceID, Limit: s.limit(p.Limit)}
		res.Data, err = s.LatestForDevice(ctx, p.DeviceID, p.Limit)
	default:
		res = Result{Mode: ModeLatest, Limit: s.limit(p.Limit)}
		res.Data, err = s.Latest(ctx, p.Limit)
	}

	if err != nil {
		s.logger.Error("query failed", "mode", res.Mode, "device", p.DeviceID, "error", err)
		return Result{}, err
	}

	res.Count = len(res.Data)
	return res, nil
}
