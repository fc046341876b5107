package configuration

import (
	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
)

// Rect is an axis aligned floor plan rectangle with X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// ZoneRect returns the rectangle of a zone.
func ZoneRect(z storage.SafetyZone) Rect {
	return Rect{X1: z.X1, Y1: z.Y1, X2: z.X2, Y2: z.Y2}
}

// Valid reports whether the corners are ordered.
func (r Rect) Valid() bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2
}

// Contains reports whether the point lies inside r or on its border.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// Overlaps reports whether r and o share interior area. Rectangles that
// only touch along an edge or a corner do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.X2 <= o.X1 || r.X1 >= o.X2 || r.Y2 <= o.Y1 || r.Y1 >= o.Y2)
}

func (r Rect) edges() [4][4]float64 {
	return [4][4]float64{
		{r.X1, r.Y1, r.X2, r.Y1},
		{r.X2, r.Y1, r.X2, r.Y2},
		{r.X2, r.Y2, r.X1, r.Y2},
		{r.X1, r.Y2, r.X1, r.Y1},
	}
}

// segmentsIntersect reports whether segment (x1,y1)-(x2,y2) crosses
// segment (x3,y3)-(x4,y4). Parallel segments never intersect here.
func segmentsIntersect(x1, y1, x2, y2, x3, y3, x4, y4 float64) bool {
	denom := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if denom == 0 {
		return false
	}
	t := ((x1-x3)*(y3-y4) - (y1-y3)*(x3-x4)) / denom
	u := -((x1-x2)*(y1-y3) - (y1-y2)*(x1-x3)) / denom
	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}

// SensorInRect reports whether a sensor belongs to r. A window/door sensor
// belongs when its point is inside; a motion detector when either end point
// is inside or its segment crosses an edge.
func SensorInRect(s sensor.Sensor, r Rect) bool {
	x, y := float64(s.X), float64(s.Y)
	if !s.IsMotion() || s.X2 == nil || s.Y2 == nil {
		return r.Contains(x, y)
	}

	x2, y2 := float64(*s.X2), float64(*s.Y2)
	if r.Contains(x, y) || r.Contains(x2, y2) {
		return true
	}
	for _, e := range r.edges() {
		if segmentsIntersect(x, y, x2, y2, e[0], e[1], e[2], e[3]) {
			return true
		}
	}
	return false
}

// SensorsInRect returns the ids of the sensors that belong to r.
func SensorsInRect(sensors []sensor.Sensor, r Rect) []int64 {
	ids := make([]int64, 0)
	for _, s := range sensors {
		if SensorInRect(s, r) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
