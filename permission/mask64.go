package permission

// Mask is a 64-bit permission set.
type Mask uint64

// MaxBits is the number of assignable bits.
const MaxBits = 64

// Has reports whether bit is set. With rootReserved, the top bit grants everything.
func (m Mask) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}

	if rootReserved {
		if (m & (1 << (MaxBits - 1))) != 0 {
			return true
		}
	}

	return (m & (1 << bit)) != 0
}

// Set returns m with bit set.
func (m Mask) Set(bit int) Mask {
	if bit < 0 || bit >= MaxBits {
		return m
	}
	return m | (1 << bit)
}

// Clear returns m with bit cleared.
func (m Mask) Clear(bit int) Mask {
	if bit < 0 || bit >= MaxBits {
		return m
	}
	return m &^ (1 << bit)
}
