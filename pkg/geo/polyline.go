package geo

import "math"

// polylinePrecision is the 5 decimal place scale used by Google and TfL.
const polylinePrecision = 1e5

// EncodePolyline encodes points with Google's polyline algorithm.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func EncodePolyline(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	out := make([]byte, 0, len(points)*6)
	var lastLat, lastLon int
	for _, p := range points {
		lat := int(math.Round(p.Lat * polylinePrecision))
		lon := int(math.Round(p.Lon * polylinePrecision))
		out = appendSigned(out, lat-lastLat)
		out = appendSigned(out, lon-lastLon)
		lastLat, lastLon = lat, lon
	}
	return string(out)
}

// DecodePolyline decodes a polyline string. Truncated input yields the points
// decoded before the truncation.
func DecodePolyline(encoded string) []Point {
	if encoded == "" {
		return nil
	}

	var (
		points   []Point
		lat, lon int
		pos      int
	)
	for pos < len(encoded) {
		dLat, next, ok := readSigned(encoded, pos)
		if !ok {
			break
		}
		dLon, next, ok := readSigned(encoded, next)
		if !ok {
			break
		}
		pos = next
		lat += dLat
		lon += dLon
		points = append(points, Point{
			Lat: float64(lat) / polylinePrecision,
			Lon: float64(lon) / polylinePrecision,
		})
	}
	return points
}

func appendSigned(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte(0x20|(u&0x1f))+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

func readSigned(s string, pos int) (int, int, bool) {
	var result, shift int
	for pos < len(s) {
		chunk := int(s[pos]) - 63
		pos++
		result |= (chunk & 0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), pos, true
			}
			return result >> 1, pos, true
		}
	}
	return 0, pos, false
}
