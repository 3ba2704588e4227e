package geometry

import "fmt"

// Orientation selects how a frame is partitioned across screens.
type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
	OrientationGrid       Orientation = "grid"
)

// ParseOrientation validates an orientation string from the API layer.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case OrientationHorizontal, OrientationVertical, OrientationGrid:
		return Orientation(s), nil
	default:
		return "", fmt.Errorf("unknown orientation %q (want horizontal, vertical or grid)", s)
	}
}

// Region is one crop rectangle within a frame. Index order is the stream
// slot order: region i is consumed via the group's test{i} sub-stream.
type Region struct {
	Index    int    `json:"index"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Position string `json:"position"`
}

// Plan is a complete partition of a frame: the ordered screen regions
// plus the full-frame region consumed by single-display groups.
type Plan struct {
	FrameWidth  int         `json:"frame_width"`
	FrameHeight int         `json:"frame_height"`
	Orientation Orientation `json:"orientation"`
	Regions     []Region    `json:"regions"`
}

// FullFrame returns the whole frame as a single region.
func FullFrame(width, height int) Region {
	return Region{X: 0, Y: 0, Width: width, Height: height, Position: "Full Frame"}
}

func validateFrame(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	return nil
}

// PlanHorizontal splits the frame into count vertical strips, left to
// right. Every strip is width/count wide except the last, which absorbs
// the remainder. A count below 1 is clamped to 1.
func PlanHorizontal(width, height, count int) (Plan, error) {
	if err := validateFrame(width, height); err != nil {
		return Plan{}, err
	}
	if count < 1 {
		count = 1
	}

	base := width / count
	remainder := width % count

	regions := make([]Region, 0, count)
	for i := 0; i < count; i++ {
		w := base
		if i == count-1 {
			w += remainder
		}
		regions = append(regions, Region{
			Index:    i,
			X:        i * base,
			Y:        0,
			Width:    w,
			Height:   height,
			Position: fmt.Sprintf("Column %d", i+1),
		})
	}

	return Plan{
		FrameWidth:  width,
		FrameHeight: height,
		Orientation: OrientationHorizontal,
		Regions:     regions,
	}, nil
}

// PlanVertical splits the frame into count horizontal bands, top to
// bottom, with the last band absorbing the height remainder.
func PlanVertical(width, height, count int) (Plan, error) {
	if err := validateFrame(width, height); err != nil {
		return Plan{}, err
	}
	if count < 1 {
		count = 1
	}

	base := height / count
	remainder := height % count

	regions := make([]Region, 0, count)
	for i := 0; i < count; i++ {
		h := base
		if i == count-1 {
			h += remainder
		}
		regions = append(regions, Region{
			Index:    i,
			X:        0,
			Y:        i * base,
			Width:    width,
			Height:   h,
			Position: fmt.Sprintf("Row %d", i+1),
		})
	}

	return Plan{
		FrameWidth:  width,
		FrameHeight: height,
		Orientation: OrientationVertical,
		Regions:     regions,
	}, nil
}

// PlanGrid splits the frame into rows*cols cells in row-major order.
// The base/remainder rule applies per axis: the last column absorbs the
// width remainder and the last row the height remainder. Grid dimensions
// are validated, not corrected; callers own rows*cols consistency.
func PlanGrid(width, height, rows, cols int) (Plan, error) {
	if err := validateFrame(width, height); err != nil {
		return Plan{}, err
	}
	if rows <= 0 || cols <= 0 {
		return Plan{}, fmt.Errorf("invalid grid %dx%d", rows, cols)
	}

	baseW := width / cols
	remW := width % cols
	baseH := height / rows
	remH := height % rows

	regions := make([]Region, 0, rows*cols)
	for r := 0; r < rows; r++ {
		h := baseH
		if r == rows-1 {
			h += remH
		}
		for c := 0; c < cols; c++ {
			w := baseW
			if c == cols-1 {
				w += remW
			}
			regions = append(regions, Region{
				Index:    r*cols + c,
				X:        c * baseW,
				Y:        r * baseH,
				Width:    w,
				Height:   h,
				Position: fmt.Sprintf("Row %d, Col %d", r+1, c+1),
			})
		}
	}

	return Plan{
		FrameWidth:  width,
		FrameHeight: height,
		Orientation: OrientationGrid,
		Regions:     regions,
	}, nil
}

// PlanLayout dispatches on orientation. For grid layouts rows and cols
// are used; for linear layouts screenCount is used.
func PlanLayout(width, height int, orientation Orientation, screenCount, rows, cols int) (Plan, error) {
	switch orientation {
	case OrientationHorizontal:
		return PlanHorizontal(width, height, screenCount)
	case OrientationVertical:
		return PlanVertical(width, height, screenCount)
	case OrientationGrid:
		return PlanGrid(width, height, rows, cols)
	default:
		return Plan{}, fmt.Errorf("unknown orientation %q", orientation)
	}
}
