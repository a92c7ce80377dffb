package layout

import (
	"sort"

	"github.com/tidwall/rtree"

	"invoicelayout/pkg/models"
)

// TokenIndex is a spatial index over the tokens of one page.
type TokenIndex struct {
	tree rtree.RTreeG[models.Token]
	size int
}

func NewTokenIndex(tokens []models.Token) *TokenIndex {
	idx := &TokenIndex{}
	for _, t := range tokens {
		idx.tree.Insert([2]float64{t.X, t.Y}, [2]float64{t.Right(), t.Bottom()}, t)
		idx.size++
	}
	return idx
}

func (idx *TokenIndex) Len() int { return idx.size }

// Search returns tokens intersecting box, ordered top to bottom then left to right.
func (idx *TokenIndex) Search(box models.BBox) []models.Token {
	var found []models.Token
	idx.tree.Search([2]float64{box[0], box[1]}, [2]float64{box[2], box[3]},
		func(_, _ [2]float64, t models.Token) bool {
			found = append(found, t)
			return true
		})
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Y != found[j].Y {
			return found[i].Y < found[j].Y
		}
		return found[i].X < found[j].X
	})
	return found
}

// RightOf returns tokens on the same line as anchor, within maxDist to its right.
func (idx *TokenIndex) RightOf(anchor models.Token, maxDist float64) []models.Token {
	band := anchor.Height / 2
	box := models.BBox{anchor.Right() + 0.01, anchor.CenterY() - band, anchor.Right() + maxDist, anchor.CenterY() + band}
	return idx.Search(box)
}

// Below returns tokens under anchor whose horizontal extent overlaps it,
// within maxDist of its bottom edge.
func (idx *TokenIndex) Below(anchor models.Token, maxDist float64) []models.Token {
	box := models.BBox{anchor.X, anchor.Bottom() + 0.01, anchor.Right(), anchor.Bottom() + maxDist}
	return idx.Search(box)
}
