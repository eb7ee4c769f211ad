package kernel

// initRandomSeed mixes two values into a seed with a 16-round tiny
// encryption algorithm.
func initRandomSeed(v0, v1 uint32) uint32 {
	var s0 uint32
	for range 16 {
		s0 += 0x9e3779b9
		v0 += ((v1 << 4) + 0xa341316c) ^ (v1 + s0) ^ ((v1 >> 5) + 0xc8013ea4)
		v1 += ((v0 << 4) + 0xad90777d) ^ (v0 + s0) ^ ((v0 >> 5) + 0x7e95761e)
	}
	return v0
}

// randomInt advances a linear congruential generator.
func randomInt(seed *uint32) uint32 {
	*seed = 1664525*(*seed) + 1013904223
	return *seed
}

// randomFloat returns a value in [0, 1).
func randomFloat(seed *uint32) float32 {
	return float32(randomInt(seed)&0x00FFFFFF) / float32(0x01000000)
}

func randomInUnitDisk(seed *uint32) (x, y float32) {
	for {
		x = 2*randomFloat(seed) - 1
		y = 2*randomFloat(seed) - 1
		if x*x+y*y < 1 {
			return x, y
		}
	}
}

func randomInUnitSphere(seed *uint32) [3]float32 {
	for {
		p := [3]float32{2*randomFloat(seed) - 1, 2*randomFloat(seed) - 1, 2*randomFloat(seed) - 1}
		if p[0]*p[0]+p[1]*p[1]+p[2]*p[2] < 1 {
			return p
		}
	}
}
