package track

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const (
	bigWigMagic    = 0x888FFC26
	chromTreeMagic = 0x78CA8C91
	rTreeMagic     = 0x2468ACE0
)

// Section types of bigWig data blocks.
const (
	sectionBedGraph  = 1
	sectionVarStep   = 2
	sectionFixedStep = 3
)

// bbiHeader is the fixed part of the bbi file header following the magic.
type bbiHeader struct {
	Version           uint16
	ZoomLevels        uint16
	ChromTreeOffset   uint64
	DataOffset        uint64
	IndexOffset       uint64
	FieldCount        uint16
	DefinedFieldCount uint16
	SQLOffset         uint64
	SummaryOffset     uint64
	UncompressBufSize uint32
	ExtensionOffset   uint64
}

type chromTreeHeader struct {
	Magic     uint32
	BlockSize uint32
	KeySize   uint32
	ValSize   uint32
	ItemCount uint64
	Reserved  uint64
}

type rTreeHeader struct {
	Magic         uint32
	BlockSize     uint32
	ItemCount     uint64
	StartChromIx  uint32
	StartBase     uint32
	EndChromIx    uint32
	EndBase       uint32
	EndFileOffset uint64
	ItemsPerSlot  uint32
	Reserved      uint32
}

const rTreeHeaderSize = 48

type nodeHeader struct {
	IsLeaf   uint8
	Reserved uint8
	Count    uint16
}

// rTreeItem is a leaf or index entry of the data R-tree. Size is only set
// for leaf entries; Offset points at a data block (leaf) or child node.
type rTreeItem struct {
	StartChromIx uint32
	StartBase    uint32
	EndChromIx   uint32
	EndBase      uint32
	Offset       uint64
	Size         uint64
}

// sectionHeader precedes the records of every data block.
type sectionHeader struct {
	ChromID   uint32
	Start     uint32
	End       uint32
	Step      uint32
	Span      uint32
	Type      uint8
	Reserved  uint8
	ItemCount uint16
}

const sectionHeaderSize = 24

type chromInfo struct {
	id     uint32
	length int64
}

// BigWig reads values from an indexed bigWig file.
type BigWig struct {
	f      *os.File
	r      io.ReaderAt
	order  binary.ByteOrder
	header bbiHeader
	chroms map[string]chromInfo
	root   int64 // file offset of the R-tree root node
}

// OpenBigWig opens a bigWig file and reads its chromosome list and index header.
func OpenBigWig(path string) (*BigWig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bigWig: %w", err)
	}

	bw, err := newBigWig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bw.f = f
	return bw, nil
}

// newBigWig parses the bigWig structures from r.
func newBigWig(r io.ReaderAt) (*BigWig, error) {
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	order, ok := byteOrder(magic[:])
	if !ok {
		return nil, fmt.Errorf("not a bigWig file")
	}

	bw := &BigWig{r: r, order: order}
	if err := bw.readAt(4, &bw.header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if err := bw.readChromTree(); err != nil {
		return nil, fmt.Errorf("read chromosome tree: %w", err)
	}

	var idx rTreeHeader
	if err := bw.readAt(int64(bw.header.IndexOffset), &idx); err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if idx.Magic != rTreeMagic {
		return nil, fmt.Errorf("invalid index magic %#x", idx.Magic)
	}
	bw.root = int64(bw.header.IndexOffset) + rTreeHeaderSize

	return bw, nil
}

// byteOrder returns the byte order in which magic spells the bigWig magic.
func byteOrder(magic []byte) (binary.ByteOrder, bool) {
	switch {
	case binary.LittleEndian.Uint32(magic) == bigWigMagic:
		return binary.LittleEndian, true
	case binary.BigEndian.Uint32(magic) == bigWigMagic:
		return binary.BigEndian, true
	}
	return nil, false
}

// readAt decodes a fixed-size value at offset.
func (bw *BigWig) readAt(offset int64, data any) error {
	size := binary.Size(data)
	sr := io.NewSectionReader(bw.r, offset, int64(size))
	return binary.Read(sr, bw.order, data)
}

func (bw *BigWig) readChromTree() error {
	offset := int64(bw.header.ChromTreeOffset)

	var h chromTreeHeader
	if err := bw.readAt(offset, &h); err != nil {
		return err
	}
	if h.Magic != chromTreeMagic {
		return fmt.Errorf("invalid magic %#x", h.Magic)
	}
	if h.ValSize != 8 {
		return fmt.Errorf("unexpected value size %d", h.ValSize)
	}

	bw.chroms = make(map[string]chromInfo, h.ItemCount)
	return bw.readChromNode(offset+int64(binary.Size(h)), h.KeySize)
}

// readChromNode walks one B+ tree node and its children.
func (bw *BigWig) readChromNode(offset int64, keySize uint32) error {
	var nh nodeHeader
	if err := bw.readAt(offset, &nh); err != nil {
		return err
	}
	offset += 4

	itemSize := int64(keySize) + 8
	buf := make([]byte, int64(nh.Count)*itemSize)
	if _, err := bw.r.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("read node items: %w", err)
	}

	for i := 0; i < int(nh.Count); i++ {
		item := buf[int64(i)*itemSize : int64(i+1)*itemSize]
		key := strings.TrimRight(string(item[:keySize]), "\x00")
		val := item[keySize:]

		if nh.IsLeaf != 0 {
			bw.chroms[key] = chromInfo{
				id:     bw.order.Uint32(val[0:4]),
				length: int64(bw.order.Uint32(val[4:8])),
			}
			continue
		}

		child := int64(bw.order.Uint64(val))
		if err := bw.readChromNode(child, keySize); err != nil {
			return err
		}
	}
	return nil
}

// ChromLength implements Track.
func (bw *BigWig) ChromLength(chrom string) (int64, bool) {
	c, ok := bw.chroms[chrom]
	return c.length, ok
}

// Values implements Track.
func (bw *BigWig) Values(chrom string, start, end int64) ([]float64, error) {
	c, ok := bw.chroms[chrom]
	if !ok {
		return nil, fmt.Errorf("%s: %w", chrom, ErrUnknownChrom)
	}
	if err := checkRange(chrom, start, end, c.length); err != nil {
		return nil, err
	}

	values := nanSlice(end - start)
	if start == end {
		return values, nil
	}

	blocks, err := bw.findBlocks(bw.root, c.id, uint32(start), uint32(end))
	if err != nil {
		return nil, fmt.Errorf("query index %s:%d-%d: %w", chrom, start, end, err)
	}

	for _, b := range blocks {
		data, err := bw.readBlock(b)
		if err != nil {
			return nil, fmt.Errorf("read block at %d: %w", b.Offset, err)
		}
		if err := bw.decodeBlock(data, c.id, start, values); err != nil {
			return nil, fmt.Errorf("decode block at %d: %w", b.Offset, err)
		}
	}
	return values, nil
}

// findBlocks collects the leaf entries of the R-tree overlapping the query.
func (bw *BigWig) findBlocks(offset int64, chromID, start, end uint32) ([]rTreeItem, error) {
	var nh nodeHeader
	if err := bw.readAt(offset, &nh); err != nil {
		return nil, err
	}
	offset += 4

	itemSize := int64(24)
	if nh.IsLeaf != 0 {
		itemSize = 32
	}
	buf := make([]byte, int64(nh.Count)*itemSize)
	if _, err := bw.r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read node items: %w", err)
	}

	var blocks []rTreeItem
	for i := 0; i < int(nh.Count); i++ {
		b := buf[int64(i)*itemSize:]
		item := rTreeItem{
			StartChromIx: bw.order.Uint32(b[0:4]),
			StartBase:    bw.order.Uint32(b[4:8]),
			EndChromIx:   bw.order.Uint32(b[8:12]),
			EndBase:      bw.order.Uint32(b[12:16]),
			Offset:       bw.order.Uint64(b[16:24]),
		}
		if !item.overlaps(chromID, start, end) {
			continue
		}

		if nh.IsLeaf != 0 {
			item.Size = bw.order.Uint64(b[24:32])
			blocks = append(blocks, item)
			continue
		}

		children, err := bw.findBlocks(int64(item.Offset), chromID, start, end)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, children...)
	}
	return blocks, nil
}

// overlaps compares (chrom, base) pairs lexicographically against the
// entry's bounding range.
func (it rTreeItem) overlaps(chromID, start, end uint32) bool {
	return pairLess(chromID, start, it.EndChromIx, it.EndBase) &&
		pairLess(it.StartChromIx, it.StartBase, chromID, end)
}

func pairLess(aHi, aLo, bHi, bLo uint32) bool {
	if aHi != bHi {
		return aHi < bHi
	}
	return aLo < bLo
}

// readBlock reads and, if the file is compressed, inflates a data block.
func (bw *BigWig) readBlock(item rTreeItem) ([]byte, error) {
	raw := make([]byte, item.Size)
	if _, err := bw.r.ReadAt(raw, int64(item.Offset)); err != nil {
		return nil, err
	}
	if bw.header.UncompressBufSize == 0 {
		return raw, nil
	}

	z, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open zlib reader: %w", err)
	}
	defer z.Close()
	return io.ReadAll(z)
}

// decodeBlock fills values (covering [start, start+len(values))) with the
// records of one data section.
func (bw *BigWig) decodeBlock(data []byte, chromID uint32, start int64, values []float64) error {
	if len(data) < sectionHeaderSize {
		return fmt.Errorf("block length %d is shorter than the section header", len(data))
	}
	var h sectionHeader
	if err := binary.Read(bytes.NewReader(data[:sectionHeaderSize]), bw.order, &h); err != nil {
		return err
	}
	if h.ChromID != chromID {
		return nil
	}
	data = data[sectionHeaderSize:]

	float := func(b []byte) float64 {
		return float64(math.Float32frombits(bw.order.Uint32(b)))
	}

	switch h.Type {
	case sectionBedGraph:
		if len(data) < int(h.ItemCount)*12 {
			return fmt.Errorf("bedGraph section truncated")
		}
		for i := 0; i < int(h.ItemCount); i++ {
			r := data[i*12:]
			from := int64(bw.order.Uint32(r[0:4]))
			to := int64(bw.order.Uint32(r[4:8]))
			fill(values, start, from, to, float(r[8:12]))
		}
	case sectionVarStep:
		if len(data) < int(h.ItemCount)*8 {
			return fmt.Errorf("variable step section truncated")
		}
		for i := 0; i < int(h.ItemCount); i++ {
			r := data[i*8:]
			from := int64(bw.order.Uint32(r[0:4]))
			fill(values, start, from, from+int64(h.Span), float(r[4:8]))
		}
	case sectionFixedStep:
		if len(data) < int(h.ItemCount)*4 {
			return fmt.Errorf("fixed step section truncated")
		}
		for i := 0; i < int(h.ItemCount); i++ {
			from := int64(h.Start) + int64(i)*int64(h.Step)
			fill(values, start, from, from+int64(h.Span), float(data[i*4:]))
		}
	default:
		return fmt.Errorf("unsupported section type %d", h.Type)
	}
	return nil
}

// Close implements Track.
func (bw *BigWig) Close() error {
	if bw.f == nil {
		return nil
	}
	err := bw.f.Close()
	bw.f = nil
	return err
}
