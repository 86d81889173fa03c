package encode

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ImageRowClass tags a row of the image table.
type ImageRowClass uint64

const (
	ImageInstruction ImageRowClass = 1
	ImageBrTable     ImageRowClass = 2
	ImageInitMemory  ImageRowClass = 3
)

func (c ImageRowClass) String() string {
	switch c {
	case ImageInstruction:
		return "instruction"
	case ImageBrTable:
		return "br_table"
	case ImageInitMemory:
		return "init_memory"
	default:
		return fmt.Sprintf("image_class(%d)", uint64(c))
	}
}

func init() {
	for name, bits := range map[string]int{
		"instruction": InstructionBoundary,
		"br_table":    IndirectBoundary,
		"init_memory": InitMemoryBoundary,
		"host_call":   HostCallBoundary,
	} {
		if bits > ImageDataBoundary {
			panic(fmt.Sprintf("encode: %s boundary %d exceeds image data width %d", name, bits, ImageDataBoundary))
		}
	}
}

// EncodeImageRow returns class<<224 | data.
func EncodeImageRow(class ImageRowClass, data *uint256.Int) *uint256.Int {
	checkBigWidth(class.String(), data, ImageDataBoundary)
	v := new(uint256.Int).Set(data)
	return pack(v, uint64(class), ImageDataBoundary)
}

// DecodeImageRow splits an image row into its class and payload.
func DecodeImageRow(v *uint256.Int) (ImageRowClass, *uint256.Int) {
	class := ImageRowClass(slot(v, ImageDataBoundary, 32))
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), ImageDataBoundary)
	mask.SubUint64(mask, 1)
	return class, mask.And(mask, v)
}
