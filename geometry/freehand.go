package geometry

import "math"

// FreehandOptions controls the pressure-sensitive outline generated for a
// stroke. Size is the nominal diameter at pressure 0.5.
type FreehandOptions struct {
	Size float64
	// Thinning scales how much pressure changes the radius. Negative values
	// make the stroke thicker under light pressure.
	Thinning float64
	// Smoothing drops outline points closer than Size*Smoothing to the
	// previous one.
	Smoothing float64
	// Streamline pulls each sample towards the previous one, in [0,1).
	Streamline float64
	// CapSegments is the number of arc steps in each round end cap.
	CapSegments int
}

// PenOptions are the outline settings used for pen strokes of width size.
func PenOptions(size float64) FreehandOptions {
	return FreehandOptions{
		Size:        size,
		Thinning:    -0.3,
		Smoothing:   0.35,
		Streamline:  0.15,
		CapSegments: 12,
	}
}

type sample struct {
	pos      Vec
	pressure float64
}

// Outline tessellates points into a closed polygon enclosing the stroke.
// The result runs down the left edge, around the end cap, back along the
// right edge and around the start cap. Inputs whose samples all coincide
// produce a circle.
func Outline(points []Point, opts FreehandOptions) []Vec {
	if len(points) == 0 {
		return nil
	}
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.CapSegments <= 1 {
		opts.CapSegments = 12
	}

	samples := streamline(points, opts.Streamline)
	if len(samples) == 1 {
		return Circle(samples[0].pos, radiusFor(opts, samples[0].pressure), opts.CapSegments*2)
	}

	minDist := opts.Size * opts.Smoothing
	left := make([]Vec, 0, len(samples))
	right := make([]Vec, 0, len(samples))

	prevDir := samples[1].pos.Sub(samples[0].pos).Unit()
	for i, s := range samples {
		var dir Vec
		switch {
		case i == len(samples)-1:
			dir = s.pos.Sub(samples[i-1].pos).Unit()
		default:
			dir = samples[i+1].pos.Sub(s.pos).Unit()
			// Average with the incoming direction so corners bend
			// instead of pinching.
			if avg := dir.Add(prevDir).Unit(); avg != (Vec{}) {
				dir = avg
			}
		}
		prevDir = dir

		off := dir.Perp().Mul(radiusFor(opts, s.pressure))
		l, r := s.pos.Add(off), s.pos.Sub(off)

		last := i == len(samples)-1
		if i > 0 && !last && l.Sub(left[len(left)-1]).Len() < minDist && r.Sub(right[len(right)-1]).Len() < minDist {
			continue
		}
		left = append(left, l)
		right = append(right, r)
	}

	n := opts.CapSegments
	end := samples[len(samples)-1].pos
	start := samples[0].pos
	endOff := left[len(left)-1].Sub(end)
	startOff := right[0].Sub(start)

	out := make([]Vec, 0, 2*len(left)+2*n)
	out = append(out, left...)
	for k := 1; k < n; k++ {
		out = append(out, end.Add(endOff.Rotate(-math.Pi*float64(k)/float64(n))))
	}
	for i := len(right) - 1; i >= 0; i-- {
		out = append(out, right[i])
	}
	for k := 1; k < n; k++ {
		out = append(out, start.Add(startOff.Rotate(-math.Pi*float64(k)/float64(n))))
	}
	return out
}

// Circle approximates a circle with segments vertices.
func Circle(c Vec, r float64, segments int) []Vec {
	if segments < 3 {
		segments = 3
	}
	out := make([]Vec, segments)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(segments)
		s, co := math.Sincos(a)
		out[i] = Vec{c.X + r*co, c.Y + r*s}
	}
	return out
}

func radiusFor(opts FreehandOptions, pressure float64) float64 {
	r := opts.Size * (0.5 - opts.Thinning*(0.5-ClampPressure(pressure)))
	return math.Max(r, 0.01)
}

// streamline smooths the input positions and drops exact repeats.
func streamline(points []Point, amount float64) []sample {
	amount = math.Min(math.Max(amount, 0), 0.99)
	t := 0.15 + (1-amount)*0.85

	out := make([]sample, 0, len(points))
	prev := points[0].Vec()
	out = append(out, sample{pos: prev, pressure: points[0].Pressure})
	for _, p := range points[1:] {
		pos := prev.Lerp(p.Vec(), t)
		if pos == prev {
			continue
		}
		out = append(out, sample{pos: pos, pressure: p.Pressure})
		prev = pos
	}
	return out
}
