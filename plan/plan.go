package plan

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

// PartSpec describes one part of a plan.
type PartSpec struct {
	// Number is the 1-based part number
	Number int32

	// Start is the first byte offset of the part (inclusive)
	Start int64

	// End is the last byte offset of the part (inclusive); End is Start-1 for the empty part
	End int64
}

// Size returns the number of bytes covered by the part.
func (p PartSpec) Size() int64 {
	return p.End - p.Start + 1
}

// Range renders the part as an HTTP byte range ("bytes=start-end").
// The empty part has no valid HTTP range and renders as "".
func (p PartSpec) Range() string {
	if p.Size() == 0 {
		return ""
	}
	return fmt.Sprintf("bytes=%d-%d", p.Start, p.End)
}

// Plan is the immutable, ordered sequence of parts for one object.
type Plan struct {
	totalSize int64
	partSize  int64
	parts     []PartSpec
}

// New builds the plan for an object of totalSize bytes split into partSize parts.
func New(totalSize, partSize int64) (*Plan, error) {
	if partSize <= 0 {
		return nil, errors.NewError("plan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("part size must be positive, got %d", partSize))
	}
	if totalSize < 0 {
		return nil, errors.NewError("plan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("total size must not be negative, got %d", totalSize))
	}

	count := Count(totalSize, partSize)
	if count > maxPartNumber {
		return nil, errors.NewError("plan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("%d parts exceed the part number range", count))
	}

	if totalSize == 0 {
		return &Plan{
			partSize: partSize,
			parts:    []PartSpec{{Number: 1, Start: 0, End: -1}},
		}, nil
	}

	parts := make([]PartSpec, 0, count)
	for p := int64(1); p <= count; p++ {
		start := (p - 1) * partSize
		end := min(start+partSize-1, totalSize-1)
		parts = append(parts, PartSpec{Number: int32(p), Start: start, End: end})
	}

	return &Plan{
		totalSize: totalSize,
		partSize:  partSize,
		parts:     parts,
	}, nil
}

// maxPartNumber bounds part numbers to the int32 range used on the wire.
const maxPartNumber = 1<<31 - 1

// Count returns the number of parts New would produce (ceiling division, at least one).
func Count(totalSize, partSize int64) int64 {
	if totalSize <= 0 || partSize <= 0 {
		return 1
	}
	return (totalSize + partSize - 1) / partSize
}

// TotalSize returns the size of the planned object in bytes.
func (p *Plan) TotalSize() int64 {
	return p.totalSize
}

// PartSize returns the configured part size.
func (p *Plan) PartSize() int64 {
	return p.partSize
}

// Len returns the number of parts.
func (p *Plan) Len() int {
	return len(p.parts)
}

// Parts returns a copy of the planned parts in ascending part order.
func (p *Plan) Parts() []PartSpec {
	out := make([]PartSpec, len(p.parts))
	copy(out, p.parts)
	return out
}

// Part returns the part with the given 1-based number.
func (p *Plan) Part(number int32) (PartSpec, bool) {
	if number < 1 || int(number) > len(p.parts) {
		return PartSpec{}, false
	}
	return p.parts[number-1], true
}

// Last returns the final part of the plan.
func (p *Plan) Last() PartSpec {
	return p.parts[len(p.parts)-1]
}
