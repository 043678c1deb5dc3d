package main

// Masonry height buckets, in dp. The grid deliberately uses three fixed
// buckets instead of aspect-preserving heights.
const (
	HeightLandscape = 250
	HeightPortrait  = 400
	HeightSquare    = 200
)

const (
	breakpointMedium = 760
	breakpointWide   = 1200
	maxColumns       = 6
)

// ColumnCount derives the column count from the viewport width. A non-zero
// override (2..6) from the user's settings wins.
func ColumnCount(width int, override int) int {
	if override >= 2 && override <= maxColumns {
		return override
	}
	switch {
	case width >= breakpointWide:
		return 4
	case width >= breakpointMedium:
		return 3
	default:
		return 2
	}
}

// EstimateHeight buckets an image by orientation. Implausible sizes fall back
// to the square pair and so to the smallest bucket.
func EstimateHeight(img *ImageRecord) int {
	w, h := img.Dimensions()
	switch {
	case w > h:
		return HeightLandscape
	case w < h:
		return HeightPortrait
	default:
		return HeightSquare
	}
}

type Cell struct {
	Index  int `json:"index"`
	Column int `json:"column"`
	Top    int `json:"top"`
	Height int `json:"height"`
}

// Layout places each item in the currently shortest column, leftmost on
// ties. It has no side effects; the same input always gives the same cells.
func Layout(items []ImageRecord, columns int) []Cell {
	if columns < 1 {
		columns = 1
	}
	heights := make([]int, columns)
	cells := make([]Cell, len(items))
	for i := range items {
		col := 0
		for c := 1; c < columns; c++ {
			if heights[c] < heights[col] {
				col = c
			}
		}
		h := EstimateHeight(&items[i])
		cells[i] = Cell{Index: i, Column: col, Top: heights[col], Height: h}
		heights[col] += h
	}
	return cells
}

// Visible returns the cells intersecting [top-overscan, top+height+overscan),
// the set a virtualized list materializes.
func Visible(cells []Cell, top, height, overscan int) []Cell {
	lo := top - overscan
	hi := top + height + overscan
	out := []Cell{}
	for _, c := range cells {
		if c.Top+c.Height > lo && c.Top < hi {
			out = append(out, c)
		}
	}
	return out
}
