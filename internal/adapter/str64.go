package adapter

// Str64 is a fixed-size, zero-padded string used inside copyable records.
type Str64 [64]byte

// NewStr64 truncates s to 64 bytes.
func NewStr64(s string) Str64 {
	var k Str64
	copy(k[:], s)
	return k
}

func (bs Str64) Len() int {
	for i := range bs {
		if bs[i] == 0 {
			return i
		}
	}
	return len(bs)
}

func (bs Str64) IsZero() bool {
	return bs[0] == 0
}

func (bs Str64) AppendBytes(buf []byte) []byte {
	return append(buf, bs[:bs.Len()]...)
}

func (bs Str64) String() string {
	return string(bs[:bs.Len()])
}

// Str32 is the short variant used for tag keys and values.
type Str32 [32]byte

// NewStr32 truncates s to 32 bytes.
func NewStr32(s string) Str32 {
	var k Str32
	copy(k[:], s)
	return k
}

func (bs Str32) Len() int {
	for i := range bs {
		if bs[i] == 0 {
			return i
		}
	}
	return len(bs)
}

func (bs Str32) String() string {
	return string(bs[:bs.Len()])
}
