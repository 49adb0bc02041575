package ssdv

// Reed-Solomon RS(255,223) over GF(2^8), CCSDS parameters in conventional
// basis, as used by SSDV receivers for Normal mode packets
const (
	RS_MM     = 8
	RS_NN     = 255
	RS_GFPOLY = 0x187
	RS_FCR    = 112
	RS_PRIM   = 11
	RS_NROOTS = 32
	rsA0      = RS_NN // log of zero
)

type rsCodec struct {
	alphaTo [RS_NN + 1]byte
	indexOf [RS_NN + 1]int
	genpoly [RS_NROOTS + 1]int
}

var rs8 = newRSCodec()

func (rs *rsCodec) modnn(x int) int {
	for x >= RS_NN {
		x -= RS_NN
		x = (x >> RS_MM) + (x & RS_NN)
	}
	return x
}

func newRSCodec() *rsCodec {
	rs := &rsCodec{}

	rs.indexOf[0] = rsA0
	rs.alphaTo[rsA0] = 0
	sr := 1
	for i := 0; i < RS_NN; i++ {
		rs.indexOf[sr] = i
		rs.alphaTo[i] = byte(sr)
		sr <<= 1
		if sr&(1<<RS_MM) != 0 {
			sr ^= RS_GFPOLY
		}
		sr &= RS_NN
	}

	// Generator polynomial with roots alpha^((FCR+i)*PRIM)
	var g [RS_NROOTS + 1]byte
	g[0] = 1
	root := RS_FCR * RS_PRIM
	for i := 0; i < RS_NROOTS; i++ {
		g[i+1] = 1
		for j := i; j > 0; j-- {
			if g[j] != 0 {
				g[j] = g[j-1] ^ rs.alphaTo[rs.modnn(rs.indexOf[g[j]]+root)]
			} else {
				g[j] = g[j-1]
			}
		}
		g[0] = rs.alphaTo[rs.modnn(rs.indexOf[g[0]]+root)]
		root += RS_PRIM
	}
	for i := range g {
		rs.genpoly[i] = rs.indexOf[g[i]]
	}
	return rs
}

// encode computes RS_NROOTS parity bytes for up to RS_NN-RS_NROOTS data
// bytes; shorter blocks are treated as zero padded at the front
func (rs *rsCodec) encode(data []byte, parity []byte) {
	for i := range parity[:RS_NROOTS] {
		parity[i] = 0
	}
	for _, b := range data {
		feedback := rs.indexOf[b^parity[0]]
		if feedback != rsA0 {
			for j := 1; j < RS_NROOTS; j++ {
				parity[j] ^= rs.alphaTo[rs.modnn(feedback+rs.genpoly[RS_NROOTS-j])]
			}
		}
		copy(parity[0:RS_NROOTS-1], parity[1:RS_NROOTS])
		if feedback != rsA0 {
			parity[RS_NROOTS-1] = rs.alphaTo[rs.modnn(feedback+rs.genpoly[0])]
		} else {
			parity[RS_NROOTS-1] = 0
		}
	}
}
