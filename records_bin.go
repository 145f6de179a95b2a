package calcify

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Bin is one bucket of a histogram: Count values fell into [InEdge, ExEdge).
type Bin struct {
	InEdge float64
	ExEdge float64
	Count  uint64
}

func NewBin(inEdge, exEdge float64, count uint64) Bin {
	return Bin{inEdge, exEdge, count}
}

func (b *Bin) Inc(n uint64) {
	b.Count += n
}

func (b Bin) Contains(x float64) bool {
	return x >= b.InEdge && x < b.ExEdge
}

func (b Bin) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"count":`...)
	buf = appendJSONUint(buf, b.Count)
	buf = append(buf, `,"range":`...)
	buf = appendJSONFloatArray(buf, b.InEdge, b.ExEdge)
	return append(buf, '}')
}

func (b Bin) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, '[')
	buf = appendJSONUint(buf, b.Count)
	buf = append(buf, ',')
	buf = appendJSONFloatArray(buf, b.InEdge, b.ExEdge)
	return append(buf, ']')
}

func (b Bin) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeCountAndRange(enc, b.Count, b.InEdge, b.ExEdge)
}

func (b *Bin) DecodeMsgpack(dec *msgpack.Decoder) error {
	return decodeCountAndRange(dec, &b.Count, &b.InEdge, &b.ExEdge)
}

func (b *Bin) DecodeJSON(tv *TextValue) error {
	return countAndRangeFromText(tv, &b.Count, &b.InEdge, &b.ExEdge)
}

// PointBin is one cell of a 2-D histogram.
type PointBin struct {
	InEdgeX, ExEdgeX float64
	InEdgeY, ExEdgeY float64
	Count            uint64
}

func NewPointBin(inEdgeX, exEdgeX, inEdgeY, exEdgeY float64, count uint64) PointBin {
	return PointBin{inEdgeX, exEdgeX, inEdgeY, exEdgeY, count}
}

func (b *PointBin) Inc(n uint64) {
	b.Count += n
}

func (b PointBin) Contains(p Point) bool {
	return p.X >= b.InEdgeX && p.X < b.ExEdgeX && p.Y >= b.InEdgeY && p.Y < b.ExEdgeY
}

func (b PointBin) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"count":`...)
	buf = appendJSONUint(buf, b.Count)
	buf = append(buf, `,"range":`...)
	buf = appendJSONFloatArray(buf, b.InEdgeX, b.ExEdgeX, b.InEdgeY, b.ExEdgeY)
	return append(buf, '}')
}

func (b PointBin) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, '[')
	buf = appendJSONUint(buf, b.Count)
	buf = append(buf, ',')
	buf = appendJSONFloatArray(buf, b.InEdgeX, b.ExEdgeX, b.InEdgeY, b.ExEdgeY)
	return append(buf, ']')
}

func (b PointBin) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeCountAndRange(enc, b.Count, b.InEdgeX, b.ExEdgeX, b.InEdgeY, b.ExEdgeY)
}

func (b *PointBin) DecodeMsgpack(dec *msgpack.Decoder) error {
	return decodeCountAndRange(dec, &b.Count, &b.InEdgeX, &b.ExEdgeX, &b.InEdgeY, &b.ExEdgeY)
}

func (b *PointBin) DecodeJSON(tv *TextValue) error {
	return countAndRangeFromText(tv, &b.Count, &b.InEdgeX, &b.ExEdgeX, &b.InEdgeY, &b.ExEdgeY)
}

// [count, [edges...]]
func encodeCountAndRange(enc *msgpack.Encoder, count uint64, edges ...float64) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint(count); err != nil {
		return err
	}
	return encodeFloats(enc, edges...)
}

func decodeCountAndRange(dec *msgpack.Decoder, count *uint64, edges ...*float64) error {
	if err := decodeArrayLen(dec, 2); err != nil {
		return err
	}
	c, err := dec.DecodeUint64()
	if err != nil {
		return err
	}
	*count = c
	return decodeFloats(dec, edges...)
}

func countAndRangeFromText(tv *TextValue, count *uint64, edges ...*float64) error {
	var parts []*TextValue
	var err error
	if tv.Kind == TextArray {
		parts, err = tv.Items(2)
	} else {
		parts, err = tv.Fields("count", "range")
	}
	if err != nil {
		return err
	}
	c, err := parts[0].Uint()
	if err != nil {
		return err
	}
	*count = c
	return floatsFromText(parts[1], edges...)
}
