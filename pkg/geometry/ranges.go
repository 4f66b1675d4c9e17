package geometry

import (
	"tomoproj/pkg/errs"
)

// ViewRange selects views [Start, End). The zero value selects every view.
type ViewRange struct {
	Start, End int
}

// AllViews is the zero ViewRange, spelled out for readability at call sites.
var AllViews = ViewRange{}

// Resolve returns the concrete bounds of r for a geometry with n views.
func (r ViewRange) Resolve(n int) (start, end int, err error) {
	if r == (ViewRange{}) {
		return 0, n, nil
	}
	if r.Start < 0 || r.End > n || r.Start > r.End {
		return 0, 0, errs.Configuration("ViewRange", "views [%d, %d) outside [0, %d)", r.Start, r.End, n)
	}
	return r.Start, r.End, nil
}

// VoxelRange selects the voxel box Min <= (i, j, k) < Max. The zero value
// selects the whole grid.
type VoxelRange struct {
	Min, Max [3]int // x, y, z order
}

// AllVoxels is the zero VoxelRange.
var AllVoxels = VoxelRange{}

// Resolve returns the concrete bounds of r for grid v.
func (r VoxelRange) Resolve(v VolumeGrid) (VoxelRange, error) {
	if r == (VoxelRange{}) {
		return VoxelRange{Max: [3]int{v.NX, v.NY, v.NZ}}, nil
	}
	dims := [3]int{v.NX, v.NY, v.NZ}
	for a := 0; a < 3; a++ {
		if r.Min[a] < 0 || r.Max[a] > dims[a] || r.Min[a] > r.Max[a] {
			return VoxelRange{}, errs.Configuration("VoxelRange", "axis %d range [%d, %d) outside [0, %d)", a, r.Min[a], r.Max[a], dims[a])
		}
	}
	return r, nil
}

// Len returns the number of voxels in a resolved range.
func (r VoxelRange) Len() int {
	return (r.Max[0] - r.Min[0]) * (r.Max[1] - r.Min[1]) * (r.Max[2] - r.Min[2])
}

// At maps a linear offset within a resolved range to voxel indices, x fastest.
func (r VoxelRange) At(n int) (i, j, k int) {
	w := r.Max[0] - r.Min[0]
	h := r.Max[1] - r.Min[1]
	i = r.Min[0] + n%w
	j = r.Min[1] + (n/w)%h
	k = r.Min[2] + n/(w*h)
	return i, j, k
}

// Contains reports whether voxel (i, j, k) lies in a resolved range.
func (r VoxelRange) Contains(i, j, k int) bool {
	return i >= r.Min[0] && i < r.Max[0] &&
		j >= r.Min[1] && j < r.Max[1] &&
		k >= r.Min[2] && k < r.Max[2]
}
