package digestcodec

import "encoding/binary"

type Writer interface {
	Write(p []byte) (n int, err error)
}

func BoolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func WriteU64(w Writer, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tmp[:])
}

func WriteI64(w Writer, tmp *[8]byte, v int64) {
	WriteU64(w, tmp, uint64(v))
}

func WriteBool(w Writer, v bool) {
	w.Write([]byte{BoolByte(v)})
}

// WriteBytes length-prefixes b so adjacent fields cannot run together.
func WriteBytes(w Writer, tmp *[8]byte, b []byte) {
	WriteU64(w, tmp, uint64(len(b)))
	w.Write(b)
}

func WriteU32s(w Writer, tmp *[8]byte, vs []uint32) {
	WriteU64(w, tmp, uint64(len(vs)))
	for _, v := range vs {
		WriteU64(w, tmp, uint64(v))
	}
}
