package lod

import (
	"math"

	mat4d "github.com/flywave/go3d/float64/mat4"
	vec3d "github.com/flywave/go3d/float64/vec3"
	vec4d "github.com/flywave/go3d/float64/vec4"
)

// Frustum plane indices.
const (
	planeLeft = iota
	planeRight
	planeBottom
	planeTop
	planeNear
	planeFar
	numFrustumPlanes
)

// Frustum holds the six planes of a view frustum. Each plane is stored as
// (nx, ny, nz, d); points p with n*p + d >= 0 are inside its halfspace.
type Frustum struct {
	planes [numFrustumPlanes]vec4d.T
}

// SetFromMatrix extracts the frustum planes from a clip matrix (projection
// for an eye space frustum, projection*modelview for a model space one).
// Matrices are column-major, m[col][row], as produced by OpenGL style math.
func (f *Frustum) SetFromMatrix(m *mat4d.T) {
	row := func(i int) vec4d.T {
		return vec4d.T{m[0][i], m[1][i], m[2][i], m[3][i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	add := func(a, b vec4d.T) vec4d.T {
		return vec4d.T{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
	}
	sub := func(a, b vec4d.T) vec4d.T {
		return vec4d.T{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	}

	f.planes[planeLeft] = add(r3, r0)
	f.planes[planeRight] = sub(r3, r0)
	f.planes[planeBottom] = add(r3, r1)
	f.planes[planeTop] = sub(r3, r1)
	f.planes[planeNear] = add(r3, r2)
	f.planes[planeFar] = sub(r3, r2)
}

// Planes returns the six frustum planes.
func (f *Frustum) Planes() [numFrustumPlanes]vec4d.T {
	return f.planes
}

func planeNormal(p vec4d.T) vec3d.T {
	n := vec3d.T{p[0], p[1], p[2]}
	n.Normalize()
	return n
}

// HorizontalFOV returns the opening angle between the left and right plane
// of an eye space frustum, in radians.
func (f *Frustum) HorizontalFOV() float64 {
	return fovBetween(f.planes[planeLeft], f.planes[planeRight])
}

// VerticalFOV returns the opening angle between the bottom and top plane of
// an eye space frustum, in radians.
func (f *Frustum) VerticalFOV() float64 {
	return fovBetween(f.planes[planeBottom], f.planes[planeTop])
}

// The inward normals of two opposite frustum planes enclose pi minus the
// opening angle between them.
func fovBetween(a, b vec4d.T) float64 {
	na := planeNormal(a)
	nb := planeNormal(b)
	d := vec3d.Dot(&na, &nb)
	return math.Pi - math.Acos(math.Max(-1, math.Min(1, d)))
}

// IntersectsBox reports whether the box intersects the frustum. For each
// plane it tests whether any box corner lies inside the plane's halfspace;
// only a box with all eight corners outside one plane is rejected. The test
// is conservative and never culls a partially visible box.
func (f *Frustum) IntersectsBox(bb *BoundingBox) bool {
	corners := bb.Corners()

	for _, p := range f.planes {
		outside := true
		for i := range corners {
			if p[0]*corners[i][0]+p[1]*corners[i][1]+p[2]*corners[i][2]+p[3] >= 0 {
				outside = false
				break
			}
		}
		if outside {
			return false
		}
	}
	return true
}

// boxFrontFacing reports whether at least one corner of the box is not
// occluded by the proxy sphere of the body (centered at the origin). It
// casts a ray from the camera to every corner and accepts the corner if the
// ray misses the sphere, if both intersections lie behind the camera (the
// camera is inside a crater looking up), or if the corner lies in front of
// the first intersection. Tiles fully behind the horizon fail all three
// cases for every corner.
func boxFrontFacing(camPos vec3d.T, proxyRadius float64, bb *BoundingBox) bool {
	corners := bb.Corners()
	c := vec3d.Dot(&camPos, &camPos) - proxyRadius*proxyRadius

	for i := range corners {
		ray := vec3d.Sub(&corners[i], &camPos)
		rayLength := ray.Length()
		rayDir := ray
		rayDir.Scale(1 / rayLength)

		b := vec3d.Dot(&camPos, &rayDir)
		det := b*b - c
		if det < 0 {
			return true
		}

		det = math.Sqrt(det)
		if -b-det < 0 && -b+det < 0 {
			return true
		}
		if rayLength < -b-det {
			return true
		}
	}
	return false
}

// cameraPosition recovers the model space camera position from a modelview
// matrix. Modelview matrices of a camera are rigid transforms, so the
// inverse is the transposed rotation applied to the negated translation.
func cameraPosition(matVM *mat4d.T) vec3d.T {
	tx, ty, tz := matVM[3][0], matVM[3][1], matVM[3][2]
	return vec3d.T{
		-(matVM[0][0]*tx + matVM[0][1]*ty + matVM[0][2]*tz),
		-(matVM[1][0]*tx + matVM[1][1]*ty + matVM[1][2]*tz),
		-(matVM[2][0]*tx + matVM[2][1]*ty + matVM[2][2]*tz),
	}
}
