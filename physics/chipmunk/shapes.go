package chipmunk

import (
	"fmt"
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/physbridge/physics"
)

// buildShape creates the cp shapes for desc on body. They are not yet added
// to the space.
func (e *Engine) buildShape(body *cp.Body, desc physics.ShapeDesc) ([]*cp.Shape, error) {
	offset := planar(desc.LocalPose.Position)

	switch desc.Type {
	case physics.ShapeBox:
		hx, hy := desc.HalfExtents.X(), desc.HalfExtents.Y()
		if hx <= 0 || hy <= 0 {
			return nil, fmt.Errorf("%w: box half extents must be positive", physics.ErrCreateFailed)
		}
		bb := cp.BB{L: offset.X - hx, B: offset.Y - hy, R: offset.X + hx, T: offset.Y + hy}
		return []*cp.Shape{cp.NewBox2(body, bb, 0)}, nil

	case physics.ShapeSphere:
		if desc.Radius <= 0 {
			return nil, fmt.Errorf("%w: sphere radius must be positive", physics.ErrCreateFailed)
		}
		return []*cp.Shape{cp.NewCircle(body, desc.Radius, offset)}, nil

	case physics.ShapeCapsule:
		if desc.Radius <= 0 {
			return nil, fmt.Errorf("%w: capsule radius must be positive", physics.ErrCreateFailed)
		}
		a, b, ok := capsuleAxis(desc, offset)
		if !ok {
			return []*cp.Shape{cp.NewCircle(body, desc.Radius, offset)}, nil
		}
		return []*cp.Shape{cp.NewSegment(body, a, b, desc.Radius)}, nil

	case physics.ShapeConvex:
		hull := e.convexHull(desc, offset)
		if len(hull) < 3 {
			return nil, fmt.Errorf("%w: convex mesh is degenerate in the simulation plane", physics.ErrCreateFailed)
		}
		return []*cp.Shape{cp.NewPolyShapeRaw(body, len(hull), hull, 0)}, nil

	case physics.ShapeTriangleMesh:
		edges := meshEdges(desc.Mesh, offset)
		if len(edges) == 0 {
			return nil, fmt.Errorf("%w: triangle mesh has no edges in the simulation plane", physics.ErrCreateFailed)
		}
		parts := make([]*cp.Shape, 0, len(edges))
		for _, edge := range edges {
			parts = append(parts, cp.NewSegment(body, edge[0], edge[1], 0))
		}
		return parts, nil

	case physics.ShapeHeightField:
		profile := heightProfile(desc.HeightField, offset)
		if len(profile) < 2 {
			return nil, fmt.Errorf("%w: heightfield needs at least two columns", physics.ErrCreateFailed)
		}
		parts := make([]*cp.Shape, 0, len(profile)-1)
		for i := 1; i < len(profile); i++ {
			parts = append(parts, cp.NewSegment(body, profile[i-1], profile[i], 0))
		}
		return parts, nil

	case physics.ShapePlane:
		ext := e.opts.PlaneExtent
		a := cp.Vector{X: offset.X - ext, Y: offset.Y}
		b := cp.Vector{X: offset.X + ext, Y: offset.Y}
		return []*cp.Shape{cp.NewSegment(body, a, b, 0)}, nil
	}
	return nil, fmt.Errorf("%w: shape type %s", physics.ErrUnsupported, desc.Type)
}

// capsuleAxis returns the end points of the capsule's core segment. A capsule
// along Z has no extent in the plane and reports false.
func capsuleAxis(desc physics.ShapeDesc, offset cp.Vector) (cp.Vector, cp.Vector, bool) {
	h := desc.HalfHeight
	switch desc.Axis {
	case physics.AxisX:
		return offset.Add(cp.Vector{X: -h}), offset.Add(cp.Vector{X: h}), h > 0
	case physics.AxisY:
		return offset.Add(cp.Vector{Y: -h}), offset.Add(cp.Vector{Y: h}), h > 0
	}
	return offset, offset, false
}

// convexHull projects the mesh into the plane and returns its hull, decimated
// to the vertex limit.
func (e *Engine) convexHull(desc physics.ShapeDesc, offset cp.Vector) []cp.Vector {
	if desc.Mesh == nil || len(desc.Mesh.Vertices) < 3 {
		return nil
	}
	verts := make([]cp.Vector, 0, len(desc.Mesh.Vertices))
	for _, v := range desc.Mesh.Vertices {
		verts = append(verts, planar(v).Add(offset))
	}
	n := cp.ConvexHull(len(verts), verts, nil, 0)
	hull := verts[:n]

	limit := e.opts.MaxConvexVertices
	if desc.MaxVertices > 0 && desc.MaxVertices < limit {
		limit = desc.MaxVertices
	}
	if limit >= 3 && len(hull) > limit {
		out := make([]cp.Vector, 0, limit)
		step := float64(len(hull)) / float64(limit)
		for i := 0; i < limit; i++ {
			out = append(out, hull[int(float64(i)*step)])
		}
		hull = out
	}
	return hull
}

func meshEdges(mesh *physics.MeshData, offset cp.Vector) [][2]cp.Vector {
	if mesh == nil {
		return nil
	}
	type key struct{ a, b uint32 }
	seen := make(map[key]struct{})
	var edges [][2]cp.Vector
	add := func(i, j uint32) {
		if i == j || int(i) >= len(mesh.Vertices) || int(j) >= len(mesh.Vertices) {
			return
		}
		if i > j {
			i, j = j, i
		}
		if _, ok := seen[key{i, j}]; ok {
			return
		}
		seen[key{i, j}] = struct{}{}
		a := planar(mesh.Vertices[i]).Add(offset)
		b := planar(mesh.Vertices[j]).Add(offset)
		if a.Near(b, 1e-9) {
			return
		}
		edges = append(edges, [2]cp.Vector{a, b})
	}
	for t := 0; t+2 < len(mesh.Indices); t += 3 {
		i0, i1, i2 := mesh.Indices[t], mesh.Indices[t+1], mesh.Indices[t+2]
		add(i0, i1)
		add(i1, i2)
		add(i2, i0)
	}
	return edges
}

// heightProfile samples the first row of the field along X.
func heightProfile(hf *physics.HeightField, offset cp.Vector) []cp.Vector {
	if hf == nil || hf.Cols < 2 || len(hf.Heights) < hf.Cols {
		return nil
	}
	profile := make([]cp.Vector, 0, hf.Cols)
	for c := 0; c < hf.Cols; c++ {
		profile = append(profile, cp.Vector{
			X: offset.X + float64(c)*hf.ColScale,
			Y: offset.Y + hf.Heights[c]*hf.HeightScale,
		})
	}
	return profile
}

// shapeMoment approximates the moment of inertia of desc carrying mass m.
func shapeMoment(desc physics.ShapeDesc, m float64) float64 {
	offset := planar(desc.LocalPose.Position)
	switch desc.Type {
	case physics.ShapeBox:
		w, h := 2*desc.HalfExtents.X(), 2*desc.HalfExtents.Y()
		return cp.MomentForBox(m, w, h) + m*offset.LengthSq()
	case physics.ShapeSphere:
		return cp.MomentForCircle(m, 0, desc.Radius, offset)
	case physics.ShapeCapsule:
		if a, b, ok := capsuleAxis(desc, offset); ok {
			return cp.MomentForSegment(m, a, b, desc.Radius)
		}
		return cp.MomentForCircle(m, 0, desc.Radius, offset)
	case physics.ShapeConvex:
		if desc.Mesh == nil || len(desc.Mesh.Vertices) < 3 {
			return 0
		}
		verts := make([]cp.Vector, 0, len(desc.Mesh.Vertices))
		for _, v := range desc.Mesh.Vertices {
			verts = append(verts, planar(v))
		}
		n := cp.ConvexHull(len(verts), verts, nil, 0)
		return math.Abs(cp.MomentForPoly(m, n, verts[:n], offset, 0))
	}
	return 0
}

