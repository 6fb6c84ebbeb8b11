package trainwrite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const npyHeaderAlign = 64

type npyElem interface {
	~uint8 | ~int8 | ~int16 | ~float32
}

// numpyBuffer is a row-major array whose first dimension is the row count
type numpyBuffer[T npyElem] struct {
	shape []int
	descr string
	data  []T
}

func newNumpyBuffer[T npyElem](descr string, shape ...int) *numpyBuffer[T] {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &numpyBuffer[T]{shape: shape, descr: descr, data: make([]T, n)}
}

func (nb *numpyBuffer[T]) rowLen() int {
	n := 1
	for _, s := range nb.shape[1:] {
		n *= s
	}
	return n
}

func (nb *numpyBuffer[T]) row(i int) []T {
	l := nb.rowLen()
	return nb.data[i*l : (i+1)*l]
}

// header builds a version 1.0 .npy header for numRows rows
func (nb *numpyBuffer[T]) header(numRows int) []byte {
	dims := make([]string, len(nb.shape))
	dims[0] = fmt.Sprint(numRows)
	for i, s := range nb.shape[1:] {
		dims[i+1] = fmt.Sprint(s)
	}
	shape := strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", nb.descr, shape)
	// magic, version and length take 10 bytes, the dict ends with a newline
	pad := npyHeaderAlign - (10+len(dict)+1)%npyHeaderAlign
	if pad == npyHeaderAlign {
		pad = 0
	}
	dict += strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)
	binary.Write(&buf, binary.LittleEndian, uint16(len(dict)))
	buf.WriteString(dict)
	return buf.Bytes()
}

// writeNpy writes the first numRows rows as a .npy file
func (nb *numpyBuffer[T]) writeNpy(w io.Writer, numRows int) error {
	if _, err := w.Write(nb.header(numRows)); err != nil {
		return errors.Wrap(err, "writing npy header")
	}
	if err := binary.Write(w, binary.LittleEndian, nb.data[:numRows*nb.rowLen()]); err != nil {
		return errors.Wrap(err, "writing npy data")
	}
	return nil
}
