package weather

import (
	"sort"
	"time"
)

// Panel holds one timestep's records keyed by sample coordinate.
type Panel map[Coordinate]Record

// Grid is the gathered data rearranged for rendering: a time index, the
// sample coordinates laid out north-first/west-first, and one panel per time.
type Grid struct {
	Times  []time.Time
	Rows   [][]Coordinate
	Panels []Panel
}

// Assemble regrids flat records. Timestamps are collected in first-seen order
// and then sorted chronologically; equal instants share a panel.
func Assemble(records []Record) *Grid {
	g := &Grid{}

	seen := make(map[int64]bool)
	for _, r := range records {
		k := r.Time.UnixNano()
		if seen[k] {
			continue
		}
		seen[k] = true
		g.Times = append(g.Times, r.Time)
	}
	sort.SliceStable(g.Times, func(i, j int) bool { return g.Times[i].Before(g.Times[j]) })

	index := make(map[int64]int, len(g.Times))
	for i, t := range g.Times {
		index[t.UnixNano()] = i
	}

	g.Panels = make([]Panel, len(g.Times))
	for i := range g.Panels {
		g.Panels[i] = make(Panel)
	}
	for _, r := range records {
		g.Panels[index[r.Time.UnixNano()]][r.Coordinate] = r
	}

	g.Rows = gridRows(records)
	return g
}

// gridRows lays out the distinct coordinates as rows of descending latitude
// and columns of ascending longitude.
func gridRows(records []Record) [][]Coordinate {
	present := make(map[Coordinate]bool)
	var lats, lons []float64
	latSeen := make(map[float64]bool)
	lonSeen := make(map[float64]bool)

	for _, r := range records {
		c := r.Coordinate
		if present[c] {
			continue
		}
		present[c] = true
		if !latSeen[c.Lat] {
			latSeen[c.Lat] = true
			lats = append(lats, c.Lat)
		}
		if !lonSeen[c.Lon] {
			lonSeen[c.Lon] = true
			lons = append(lons, c.Lon)
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(lats)))
	sort.Float64s(lons)

	rows := make([][]Coordinate, 0, len(lats))
	for _, lat := range lats {
		row := make([]Coordinate, 0, len(lons))
		for _, lon := range lons {
			row = append(row, Coordinate{Lat: lat, Lon: lon})
		}
		rows = append(rows, row)
	}
	return rows
}

// Lookup returns the record of coordinate c at time index t.
func (g *Grid) Lookup(t int, c Coordinate) (Record, bool) {
	if t < 0 || t >= len(g.Panels) {
		return Record{}, false
	}
	r, ok := g.Panels[t][c]
	return r, ok
}

// ValueRange returns the smallest and largest value over all non-error
// records. ok is false when there is no such record.
func ValueRange(records []Record) (min, max float64, ok bool) {
	for _, r := range records {
		if r.Error {
			continue
		}
		if !ok {
			min, max, ok = r.Value, r.Value, true
			continue
		}
		if r.Value < min {
			min = r.Value
		}
		if r.Value > max {
			max = r.Value
		}
	}
	return min, max, ok
}

// Scale resolves the condition's color scale: fixed bounds are used as given,
// dynamic ones come from the records.
func (c Condition) Scale(records []Record) (min, max float64) {
	lo, hi, _ := ValueRange(records)
	min, max = c.Min, c.Max
	if c.Min < 0 {
		min = lo
	}
	if c.Max < 0 {
		max = hi
	}
	return min, max
}
