package contracts

// Region is a named region of interest on a document page. Coordinates are
// normalized to [0,1] relative to the page; Page is 1-based.
type Region struct {
	Name string  `json:"name"`
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// Overlaps reports whether two regions on the same page intersect with
// non-zero area.
func (r Region) Overlaps(o Region) bool {
	if r.Page != o.Page {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// RoiConfig holds the region-of-interest layout for a template version.
type RoiConfig struct {
	Regions []Region `json:"regions"`
}

// Region returns the region named name, or nil.
func (c *RoiConfig) Region(name string) *Region {
	for i := range c.Regions {
		if c.Regions[i].Name == name {
			return &c.Regions[i]
		}
	}
	return nil
}
