// Package region holds the directory of administrative regions and the
// geofencing primitives used by the authorization engine.
package region

import (
	"context"
	"errors"
	"sort"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed polygon boundary; the last vertex is implicitly
// connected back to the first.
type Ring []Coordinate

// Region is a named administrative area. Multi-part regions carry one
// ring per part; a point inside any part is inside the region.
type Region struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Boundary []Ring `json:"boundary"`
}

// Contains tests the point against every boundary part.
func (r Region) Contains(c Coordinate) bool {
	for _, ring := range r.Boundary {
		if pointInRing(c, ring) {
			return true
		}
	}
	return false
}

// ErrNoRegion marks a coordinate that falls outside every known
// region. Callers treat it as the unresolved outcome, not a failure.
var ErrNoRegion = errors.New("region: no region contains coordinate")

// Resolver maps a coordinate to a canonical region identifier. The
// production implementation may call out to a reverse-geocoding
// service; the in-process Directory tests stored boundaries directly.
type Resolver interface {
	ResolveRegion(ctx context.Context, c Coordinate) (string, error)
}

// Directory is an in-memory region set with point-in-region lookup.
type Directory struct {
	regions []Region
	index   map[string]Region
}

// NewDirectory builds a directory. Regions are kept in deterministic
// order so Locate is stable when boundaries overlap at edges.
func NewDirectory(regions ...Region) *Directory {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	index := make(map[string]Region, len(sorted))
	for _, r := range sorted {
		index[r.ID] = r
	}
	return &Directory{regions: sorted, index: index}
}

// Region returns a region by id.
func (d *Directory) Region(id string) (Region, bool) {
	r, ok := d.index[id]
	return r, ok
}

// Regions lists every known region.
func (d *Directory) Regions() []Region {
	out := make([]Region, len(d.regions))
	copy(out, d.regions)
	return out
}

// Locate returns the first region whose boundary contains the point.
func (d *Directory) Locate(c Coordinate) (string, bool) {
	for _, r := range d.regions {
		if r.Contains(c) {
			return r.ID, true
		}
	}
	return "", false
}

// ResolveRegion implements Resolver over the stored boundaries.
func (d *Directory) ResolveRegion(ctx context.Context, c Coordinate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, ok := d.Locate(c)
	if !ok {
		return "", ErrNoRegion
	}
	return id, nil
}

// pointInRing is the even-odd ray casting test with x=lng, y=lat.
// Points exactly on an edge may land on either side; boundaries are
// simplified administrative polygons, not survey data.
func pointInRing(c Coordinate, ring Ring) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat
		if (yi > c.Lat) != (yj > c.Lat) &&
			c.Lng < (xj-xi)*(c.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
