package calcify

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	threeVecKeys = []string{"x0", "x1", "x2"}
	fourVecKeys  = []string{"m0", "m1", "m2", "m3"}
	pointKeys    = []string{"x", "y"}
)

// ThreeVec is a 3-vector.
type ThreeVec struct {
	X0, X1, X2 float64
}

func NewThreeVec(x0, x1, x2 float64) ThreeVec {
	return ThreeVec{x0, x1, x2}
}

func (v ThreeVec) Add(o ThreeVec) ThreeVec {
	return ThreeVec{v.X0 + o.X0, v.X1 + o.X1, v.X2 + o.X2}
}

func (v ThreeVec) Sub(o ThreeVec) ThreeVec {
	return ThreeVec{v.X0 - o.X0, v.X1 - o.X1, v.X2 - o.X2}
}

func (v ThreeVec) Scale(k float64) ThreeVec {
	return ThreeVec{v.X0 * k, v.X1 * k, v.X2 * k}
}

func (v ThreeVec) Dot(o ThreeVec) float64 {
	return v.X0*o.X0 + v.X1*o.X1 + v.X2*o.X2
}

// R returns the length of the vector.
func (v ThreeVec) R() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v ThreeVec) String() string {
	return fmt.Sprintf("[%.5f, %.5f, %.5f]", v.X0, v.X1, v.X2)
}

func (v ThreeVec) AppendJSON(buf []byte) []byte {
	return appendJSONFloatFields(buf, threeVecKeys, v.X0, v.X1, v.X2)
}

func (v ThreeVec) AppendJSONCompact(buf []byte) []byte {
	return appendJSONFloatArray(buf, v.X0, v.X1, v.X2)
}

func (v ThreeVec) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeFloats(enc, v.X0, v.X1, v.X2)
}

func (v *ThreeVec) DecodeMsgpack(dec *msgpack.Decoder) error {
	return decodeFloats(dec, &v.X0, &v.X1, &v.X2)
}

func (v *ThreeVec) DecodeJSON(tv *TextValue) error {
	return namedFloatsFromText(tv, threeVecKeys, &v.X0, &v.X1, &v.X2)
}

// FourVec is a Minkowski 4-vector with M0 as the time component.
type FourVec struct {
	M0, M1, M2, M3 float64
}

func NewFourVec(m0, m1, m2, m3 float64) FourVec {
	return FourVec{m0, m1, m2, m3}
}

func FourVecFrom3(t float64, x ThreeVec) FourVec {
	return FourVec{t, x.X0, x.X1, x.X2}
}

// S2 returns the invariant interval with the (+,-,-,-) signature.
func (v FourVec) S2() float64 {
	return v.M0*v.M0 - v.M1*v.M1 - v.M2*v.M2 - v.M3*v.M3
}

func (v FourVec) Add(o FourVec) FourVec {
	return FourVec{v.M0 + o.M0, v.M1 + o.M1, v.M2 + o.M2, v.M3 + o.M3}
}

func (v FourVec) String() string {
	return fmt.Sprintf("[%.5f, %.5f, %.5f, %.5f]", v.M0, v.M1, v.M2, v.M3)
}

func (v FourVec) AppendJSON(buf []byte) []byte {
	return appendJSONFloatFields(buf, fourVecKeys, v.M0, v.M1, v.M2, v.M3)
}

func (v FourVec) AppendJSONCompact(buf []byte) []byte {
	return appendJSONFloatArray(buf, v.M0, v.M1, v.M2, v.M3)
}

func (v FourVec) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeFloats(enc, v.M0, v.M1, v.M2, v.M3)
}

func (v *FourVec) DecodeMsgpack(dec *msgpack.Decoder) error {
	return decodeFloats(dec, &v.M0, &v.M1, &v.M2, &v.M3)
}

func (v *FourVec) DecodeJSON(tv *TextValue) error {
	return namedFloatsFromText(tv, fourVecKeys, &v.M0, &v.M1, &v.M2, &v.M3)
}

// Point is a point of a 2-D plot.
type Point struct {
	X, Y float64
}

func NewPoint(x, y float64) Point {
	return Point{x, y}
}

func (p Point) R() float64 {
	return math.Hypot(p.X, p.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("[%.5f, %.5f]", p.X, p.Y)
}

func (p Point) AppendJSON(buf []byte) []byte {
	return appendJSONFloatFields(buf, pointKeys, p.X, p.Y)
}

func (p Point) AppendJSONCompact(buf []byte) []byte {
	return appendJSONFloatArray(buf, p.X, p.Y)
}

func (p Point) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeFloats(enc, p.X, p.Y)
}

func (p *Point) DecodeMsgpack(dec *msgpack.Decoder) error {
	return decodeFloats(dec, &p.X, &p.Y)
}

func (p *Point) DecodeJSON(tv *TextValue) error {
	return namedFloatsFromText(tv, pointKeys, &p.X, &p.Y)
}
