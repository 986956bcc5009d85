package field

import (
	"encoding/json"
	"math"
)

// Vec3 is a point or vector in field coordinates. It encodes as a JSON
// array [x, y, z], the layout used by team files.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

func (v *Vec3) UnmarshalJSON(data []byte) error {
	var a [3]float64
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	v.X, v.Y, v.Z = a[0], a[1], a[2]
	return nil
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Norm returns the euclidean length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Planar returns the length of the horizontal component.
func (v Vec3) Planar() float64 {
	return math.Hypot(v.X, v.Y)
}

// PlanarDistance returns the horizontal distance between two points.
func (v Vec3) PlanarDistance(o Vec3) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// Dot returns the scalar product.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Pose is a translation plus an axis-angle rotation [x, y, z, angle].
type Pose struct {
	Translation Vec3       `json:"translation"`
	Rotation    [4]float64 `json:"rotation"`
}

// Flip mirrors the pose into the other half of the field. Flip is its own
// inverse.
func (p Pose) Flip() Pose {
	p.Translation.X = -p.Translation.X
	p.Rotation[3] = math.Pi - p.Rotation[3]
	return p
}

// Position returns a pose located at v with an upright identity rotation.
func Position(v Vec3) Pose {
	return Pose{Translation: v, Rotation: [4]float64{0, 0, 1, 0}}
}

// Facing returns an upright pose located at v turned toward target.
func Facing(v, target Vec3) Pose {
	return Pose{Translation: v, Rotation: [4]float64{0, 0, 1, math.Atan2(target.Y-v.Y, target.X-v.X)}}
}
