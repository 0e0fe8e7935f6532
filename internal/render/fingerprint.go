package render

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint digests the page boundaries and block positions of l. Two
// renders of the same snapshot with the same geometry share a fingerprint,
// which the export log records for audit.
func Fingerprint(l *Layout) string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	writeInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(len(s))
		h.Write([]byte(s))
	}

	g := l.Geometry
	for _, v := range []float64{g.PageWidth, g.PageHeight, g.MarginTop, g.MarginBottom, g.MarginLeft,
		g.MarginRight, g.LineHeight, g.CharWidth, g.BlockGap, g.BannerHeight} {
		writeFloat(v)
	}
	writeInt(len(l.Pages))
	for _, page := range l.Pages {
		writeInt(page.Number)
		writeInt(len(page.Blocks))
		for _, b := range page.Blocks {
			writeString(string(b.Style))
			writeString(string(b.Section))
			writeFloat(b.X)
			writeFloat(b.Y)
			writeFloat(b.Height)
			writeInt(len(b.Lines))
			for _, line := range b.Lines {
				writeString(line)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
