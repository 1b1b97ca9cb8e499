package physics

import "math/bits"

// MaxLayers is the fixed size of the layer matrices.
const MaxLayers = 32

// LayerMatrix is the authoring-side collide and query matrix. Every edit bumps
// the revision so compiled mask tables know when they are stale.
type LayerMatrix struct {
	collide  [MaxLayers][MaxLayers]bool
	query    [MaxLayers][MaxLayers]bool
	revision uint64
}

// NewLayerMatrix returns a matrix where every layer collides with and may
// query every other layer.
func NewLayerMatrix() *LayerMatrix {
	m := &LayerMatrix{revision: 1}
	for i := 0; i < MaxLayers; i++ {
		for j := 0; j < MaxLayers; j++ {
			m.collide[i][j] = true
			m.query[i][j] = true
		}
	}
	return m
}

func (m *LayerMatrix) Revision() uint64 {
	if m == nil {
		return 0
	}
	return m.revision
}

// SetCollide sets the (a, b) and (b, a) collide cells.
func (m *LayerMatrix) SetCollide(a, b int, collide bool) {
	if !validLayer(a) || !validLayer(b) {
		return
	}
	m.collide[a][b] = collide
	m.collide[b][a] = collide
	m.revision++
}

func (m *LayerMatrix) Collides(a, b int) bool {
	if m == nil || !validLayer(a) || !validLayer(b) {
		return false
	}
	return m.collide[a][b] || m.collide[b][a]
}

// SetQuery sets whether querier layer q may query target layer t.
func (m *LayerMatrix) SetQuery(q, t int, allowed bool) {
	if !validLayer(q) || !validLayer(t) {
		return
	}
	m.query[q][t] = allowed
	m.revision++
}

func (m *LayerMatrix) Queries(q, t int) bool {
	if m == nil || !validLayer(q) || !validLayer(t) {
		return false
	}
	return m.query[q][t]
}

// CopyFrom replaces m's cells with src's and bumps the revision once.
func (m *LayerMatrix) CopyFrom(src *LayerMatrix) {
	if m == nil || src == nil {
		return
	}
	m.collide = src.collide
	m.query = src.query
	m.revision++
}

func validLayer(i int) bool {
	return i >= 0 && i < MaxLayers
}

// MaskTable is the compiled form of a LayerMatrix.
type MaskTable struct {
	Collide  [MaxLayers]uint32
	Query    [MaxLayers]uint32
	Revision uint64
}

// Compile builds per-layer masks. Collide[i] ORs every layer j whose (i, j) or
// (j, i) cell is set; Query[t] ORs every querier layer allowed to query t.
func (m *LayerMatrix) Compile() MaskTable {
	var t MaskTable
	if m == nil {
		return t
	}
	t.Revision = m.revision
	for i := 0; i < MaxLayers; i++ {
		for j := 0; j < MaxLayers; j++ {
			if m.collide[i][j] || m.collide[j][i] {
				t.Collide[i] |= 1 << uint(j)
			}
			if m.query[j][i] {
				t.Query[i] |= 1 << uint(j)
			}
		}
	}
	return t
}

// RuntimeMasks are the masks actually pushed into engine filter data.
type RuntimeMasks struct {
	Collide uint32
	Query   uint32
}

// Masks computes the runtime masks of a sanitized single-bit layer.
func (t *MaskTable) Masks(layerBits, ignore uint32) RuntimeMasks {
	idx := LayerIndex(layerBits)
	return RuntimeMasks{
		Collide: t.Collide[idx] &^ ignore,
		Query:   t.Query[idx] &^ ignore,
	}
}

// Filter assembles FilterData for a sanitized layer.
func (t *MaskTable) Filter(layerBits, ignore uint32) FilterData {
	m := t.Masks(layerBits, ignore)
	return FilterData{Layer: layerBits, CollideMask: m.Collide, QueryMask: m.Query}
}

type LayerFix uint8

const (
	LayerFixNone LayerFix = iota
	// LayerFixZero means no bit was set and layer 0 was substituted.
	LayerFixZero
	// LayerFixMultiBit means several bits were set and only the lowest was kept.
	LayerFixMultiBit
)

// SanitizeLayer reduces layerBits to exactly one bit. Applying it to its own
// result is a no-op.
func SanitizeLayer(layerBits uint32) (uint32, LayerFix) {
	switch {
	case layerBits == 0:
		return 1, LayerFixZero
	case bits.OnesCount32(layerBits) > 1:
		return layerBits & -layerBits, LayerFixMultiBit
	default:
		return layerBits, LayerFixNone
	}
}

// LayerIndex returns the index of the lowest set bit, or 0 when none is set.
func LayerIndex(layerBits uint32) int {
	if layerBits == 0 {
		return 0
	}
	return bits.TrailingZeros32(layerBits)
}
