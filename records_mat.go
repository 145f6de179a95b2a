package calcify

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ThreeMat is a 3x3 matrix stored as rows.
type ThreeMat struct {
	R0, R1, R2 ThreeVec
}

func NewThreeMat(r0, r1, r2 ThreeVec) ThreeMat {
	return ThreeMat{r0, r1, r2}
}

func ThreeMatEye() ThreeMat {
	return ThreeMat{ThreeVec{1, 0, 0}, ThreeVec{0, 1, 0}, ThreeVec{0, 0, 1}}
}

// MulVec multiplies the matrix by v taken as a column vector.
func (m ThreeMat) MulVec(v ThreeVec) ThreeVec {
	return ThreeVec{m.R0.Dot(v), m.R1.Dot(v), m.R2.Dot(v)}
}

func (m ThreeMat) String() string {
	return fmt.Sprintf("[%v,\n%v,\n%v]", m.R0, m.R1, m.R2)
}

func (m ThreeMat) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"r0":`...)
	buf = m.R0.AppendJSON(buf)
	buf = append(buf, `,"r1":`...)
	buf = m.R1.AppendJSON(buf)
	buf = append(buf, `,"r2":`...)
	buf = m.R2.AppendJSON(buf)
	return append(buf, '}')
}

func (m ThreeMat) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, '[')
	buf = m.R0.AppendJSONCompact(buf)
	buf = append(buf, ',')
	buf = m.R1.AppendJSONCompact(buf)
	buf = append(buf, ',')
	buf = m.R2.AppendJSONCompact(buf)
	return append(buf, ']')
}

func (m ThreeMat) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	for _, r := range [...]ThreeVec{m.R0, m.R1, m.R2} {
		if err := r.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

func (m *ThreeMat) DecodeMsgpack(dec *msgpack.Decoder) error {
	if err := decodeArrayLen(dec, 3); err != nil {
		return err
	}
	for _, r := range [...]*ThreeVec{&m.R0, &m.R1, &m.R2} {
		if err := r.DecodeMsgpack(dec); err != nil {
			return err
		}
	}
	return nil
}

func (m *ThreeMat) DecodeJSON(tv *TextValue) error {
	rows, err := rowsFromText(tv, 3, "r0", "r1", "r2")
	if err != nil {
		return err
	}
	for i, r := range [...]*ThreeVec{&m.R0, &m.R1, &m.R2} {
		if err := r.DecodeJSON(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// FourMat is a 4x4 matrix stored as rows.
type FourMat struct {
	N0, N1, N2, N3 FourVec
}

func NewFourMat(n0, n1, n2, n3 FourVec) FourMat {
	return FourMat{n0, n1, n2, n3}
}

// Metric returns the Minkowski metric with the (+,-,-,-) signature.
func Metric() FourMat {
	return FourMat{
		FourVec{1, 0, 0, 0},
		FourVec{0, -1, 0, 0},
		FourVec{0, 0, -1, 0},
		FourVec{0, 0, 0, -1},
	}
}

func (m FourMat) MulVec(v FourVec) FourVec {
	dot := func(r FourVec) float64 {
		return r.M0*v.M0 + r.M1*v.M1 + r.M2*v.M2 + r.M3*v.M3
	}
	return FourVec{dot(m.N0), dot(m.N1), dot(m.N2), dot(m.N3)}
}

func (m FourMat) String() string {
	return fmt.Sprintf("[%v,\n%v,\n%v,\n%v]", m.N0, m.N1, m.N2, m.N3)
}

func (m FourMat) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"n0":`...)
	buf = m.N0.AppendJSON(buf)
	buf = append(buf, `,"n1":`...)
	buf = m.N1.AppendJSON(buf)
	buf = append(buf, `,"n2":`...)
	buf = m.N2.AppendJSON(buf)
	buf = append(buf, `,"n3":`...)
	buf = m.N3.AppendJSON(buf)
	return append(buf, '}')
}

func (m FourMat) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, '[')
	for i, r := range [...]FourVec{m.N0, m.N1, m.N2, m.N3} {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = r.AppendJSONCompact(buf)
	}
	return append(buf, ']')
}

func (m FourMat) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	for _, r := range [...]FourVec{m.N0, m.N1, m.N2, m.N3} {
		if err := r.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

func (m *FourMat) DecodeMsgpack(dec *msgpack.Decoder) error {
	if err := decodeArrayLen(dec, 4); err != nil {
		return err
	}
	for _, r := range [...]*FourVec{&m.N0, &m.N1, &m.N2, &m.N3} {
		if err := r.DecodeMsgpack(dec); err != nil {
			return err
		}
	}
	return nil
}

func (m *FourMat) DecodeJSON(tv *TextValue) error {
	rows, err := rowsFromText(tv, 4, "n0", "n1", "n2", "n3")
	if err != nil {
		return err
	}
	for i, r := range [...]*FourVec{&m.N0, &m.N1, &m.N2, &m.N3} {
		if err := r.DecodeJSON(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func rowsFromText(tv *TextValue, n int, keys ...string) ([]*TextValue, error) {
	if tv.Kind == TextArray {
		return tv.Items(n)
	}
	return tv.Fields(keys...)
}
