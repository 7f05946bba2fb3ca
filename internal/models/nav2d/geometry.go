package nav2d

import "math"

// Point2D is a position in the plane.
type Point2D struct{ X, Y float64 }

// Add returns p displaced by v.
func (p Point2D) Add(v Vector2D) Point2D {
	return Point2D{X: p.X + v.Magnitude*math.Cos(v.Direction), Y: p.Y + v.Magnitude*math.Sin(v.Direction)}
}

func (p Point2D) sub(o Point2D) Vector2D {
	dx, dy := p.X-o.X, p.Y-o.Y
	return Vector2D{Magnitude: math.Hypot(dx, dy), Direction: math.Atan2(dy, dx)}
}

func (p Point2D) distanceTo(o Point2D) float64 { return p.sub(o).Magnitude }

// Vector2D is a displacement given as magnitude and direction (radians).
type Vector2D struct{ Magnitude, Direction float64 }

// normalizeTurn wraps a turn amount into (-π, π], matching
// geometry::normalizeTurn.
func normalizeTurn(radians float64) float64 {
	for radians > math.Pi {
		radians -= 2 * math.Pi
	}
	for radians <= -math.Pi {
		radians += 2 * math.Pi
	}
	return radians
}

// Rectangle2D is an axis-aligned area of the map.
type Rectangle2D struct{ Min, Max Point2D }

func (r Rectangle2D) Contains(p Point2D) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

func (r Rectangle2D) area() float64 { return (r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y) }

func (r Rectangle2D) closestPointTo(p Point2D) Point2D {
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return Point2D{X: clamp(p.X, r.Min.X, r.Max.X), Y: clamp(p.Y, r.Min.Y, r.Max.Y)}
}

func (r Rectangle2D) distanceTo(p Point2D) float64 { return p.distanceTo(r.closestPointTo(p)) }

// sampleUniform draws a point uniformly distributed within r.
func (r Rectangle2D) sampleUniform(rng randFloater) Point2D {
	return Point2D{
		X: r.Min.X + rng.Float64()*(r.Max.X-r.Min.X),
		Y: r.Min.Y + rng.Float64()*(r.Max.Y-r.Min.Y),
	}
}

// randFloater is the minimal surface this package needs from
// solver.RandomGenerator, named separately so geometry.go stays free of a
// direct solver import. *solver.RandomGenerator (a *rand.Rand) satisfies
// this by value, since Float64 has a pointer receiver.
type randFloater interface {
	Float64() float64
}
