package tjpeg

const (
	inputBufferSize = 512

	// maxLumaBlocks bounds the luma blocks of one MCU (2x2, 4x1 or 1x4).
	maxLumaBlocks = 4
	maxMCUBlocks  = maxLumaBlocks + 2

	maxTilePixels = maxLumaBlocks * 64
	maxTileBytes  = maxTilePixels * 3

	huffSlots  = 2
	quantSlots = 4
)

// huffTable is a canonical Huffman table in the form used by the decoding
// procedure of ITU T.81 F.2.2.3.
type huffTable struct {
	valid   bool
	vals    [256]byte
	mincode [17]int32
	maxcode [17]int32 // -1 when no code of that length exists
	valptr  [17]int32
}

// Workspace is the scratch memory of one decode. Its size is fixed and does not
// depend on the image dimensions; allocate one right before decoding and drop it
// afterwards.
type Workspace struct {
	in [inputBufferSize]byte

	dc [huffSlots]huffTable
	ac [huffSlots]huffTable
	qt [quantSlots][64]int32
	qv [quantSlots]bool

	coef    [64]int32
	samples [maxMCUBlocks][64]uint8
	tile    [maxTileBytes]byte
}

// NewWorkspace allocates a zeroed workspace.
func NewWorkspace() *Workspace {
	return new(Workspace)
}

func (ws *Workspace) reset() {
	for i := range ws.dc {
		ws.dc[i].valid = false
		ws.ac[i].valid = false
	}
	for i := range ws.qv {
		ws.qv[i] = false
	}
}
