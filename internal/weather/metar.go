package weather

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

// DecodeMETAR decodes a raw METAR observation into a normalized reading.
// Only the groups the validator cares about are decoded: wind, visibility,
// cloud layers (for the ceiling), present weather, temperature/dew point and
// altimeter. Unknown groups are skipped.
func DecodeMETAR(raw string, coord types.Coordinate, obsTime time.Time) (*types.WeatherReading, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 2 {
		return nil, fmt.Errorf("METAR too short: %q", raw)
	}

	reading := &types.WeatherReading{
		Coord:        coord,
		Timestamp:    obsTime,
		VisibilitySM: 10, // unlimited unless a visibility group says otherwise
		Source:       aviationWxName,
		Raw:          []byte(raw),
	}

	var tempC, dewC float64
	haveTemp := false

	for i, f := range fields {
		if f == "RMK" {
			break // remark groups reuse weather codes with different meanings
		}
		if i == 0 || isObsTime(f) {
			continue // station identifier and ddhhmmZ observation time
		}
		switch {
		case strings.HasSuffix(f, "KT"):
			decodeWind(f, reading)
		case strings.HasSuffix(f, "SM"):
			if v, ok := decodeVisibilitySM(strings.TrimSuffix(f, "SM")); ok {
				reading.VisibilitySM = v
			}
		case len(f) >= 6 && (strings.HasPrefix(f, "BKN") || strings.HasPrefix(f, "OVC")):
			if h, err := strconv.Atoi(f[3:6]); err == nil {
				ceiling := float64(h * 100)
				if reading.CeilingFt == nil || ceiling < *reading.CeilingFt {
					reading.CeilingFt = &ceiling
				}
			}
		case strings.HasPrefix(f, "A") && len(f) == 5:
			if v, err := strconv.Atoi(f[1:]); err == nil {
				// altimeter in hundredths of inHg
				reading.PressureHpa = float64(v) / 100 * 33.8639
			}
		case strings.HasPrefix(f, "Q") && len(f) == 5:
			if v, err := strconv.Atoi(f[1:]); err == nil {
				reading.PressureHpa = float64(v)
			}
		case strings.Contains(f, "/") && !strings.HasSuffix(f, "SM"):
			if t, d, ok := decodeTempDew(f); ok {
				tempC, dewC, haveTemp = t, d, true
			}
		default:
			reading.Conditions = append(reading.Conditions, decodeWxGroup(f)...)
		}
	}

	if haveTemp {
		reading.TemperatureC = tempC
		reading.HumidityPct = relativeHumidity(tempC, dewC)
	}
	if len(reading.Conditions) == 0 {
		if reading.CeilingFt != nil {
			reading.Conditions = []types.Condition{types.CondClouds}
		} else {
			reading.Conditions = []types.Condition{types.CondClear}
		}
	}
	return reading, nil
}

// isObsTime matches the ddhhmmZ observation time group.
func isObsTime(f string) bool {
	if len(f) != 7 || !strings.HasSuffix(f, "Z") {
		return false
	}
	_, err := strconv.Atoi(f[:6])
	return err == nil
}

// decodeWind handles dddffKT, dddffGggKT and VRBffKT groups.
func decodeWind(f string, r *types.WeatherReading) {
	body := strings.TrimSuffix(f, "KT")
	if gi := strings.Index(body, "G"); gi >= 0 {
		body = body[:gi] // gusts dropped; sustained speed drives the checks
	}
	if len(body) < 5 {
		return
	}
	dir, speed := body[:3], body[3:]
	if s, err := strconv.Atoi(speed); err == nil {
		r.WindSpeedKts = float64(s)
	}
	if dir != "VRB" {
		if d, err := strconv.Atoi(dir); err == nil {
			r.WindDirDeg = float64(d)
		}
	}
}

// decodeVisibilitySM handles whole ("6"), fractional ("1/2") and
// less-than ("M1/4") mile groups.
func decodeVisibilitySM(s string) (float64, bool) {
	s = strings.TrimPrefix(s, "M")
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// decodeTempDew handles tt/dd with optional M (minus) prefixes.
func decodeTempDew(f string) (float64, float64, bool) {
	t, d, ok := strings.Cut(f, "/")
	if !ok || t == "" || d == "" {
		return 0, 0, false
	}
	tv, err1 := parseSignedTemp(t)
	dv, err2 := parseSignedTemp(d)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return tv, dv, true
}

func parseSignedTemp(s string) (float64, error) {
	neg := strings.HasPrefix(s, "M")
	v, err := strconv.Atoi(strings.TrimPrefix(s, "M"))
	if err != nil {
		return 0, err
	}
	if neg {
		return -float64(v), nil
	}
	return float64(v), nil
}

// decodeWxGroup maps present-weather groups (with intensity prefix stripped)
// to condition tags.
func decodeWxGroup(f string) []types.Condition {
	g := strings.TrimLeft(f, "+-")
	switch {
	case strings.HasPrefix(g, "FZRA") || strings.HasPrefix(g, "FZDZ"):
		return []types.Condition{types.CondIcing}
	case strings.HasPrefix(g, "TS"):
		return []types.Condition{types.CondThunderstorm}
	case strings.HasPrefix(g, "GR") || strings.HasPrefix(g, "GS"):
		return []types.Condition{types.CondHail}
	case strings.HasPrefix(g, "RA") || strings.HasPrefix(g, "SHRA"):
		return []types.Condition{types.CondRain}
	case strings.HasPrefix(g, "DZ"):
		return []types.Condition{types.CondDrizzle}
	case strings.HasPrefix(g, "SN") || strings.HasPrefix(g, "SHSN"):
		return []types.Condition{types.CondSnow}
	case g == "FG":
		return []types.Condition{types.CondFog}
	case g == "BR":
		return []types.Condition{types.CondMist}
	default:
		return nil
	}
}

// relativeHumidity derives RH% from temperature and dew point (Magnus
// formula).
func relativeHumidity(tempC, dewC float64) float64 {
	sat := func(t float64) float64 {
		return math.Exp(17.625 * t / (243.04 + t))
	}
	rh := 100 * sat(dewC) / sat(tempC)
	if rh > 100 {
		rh = 100
	}
	return rh
}
