package tableau

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Save writes the table as row-major little-endian float64 values of shape
// [Methods][Stages+1][Stages].
func (c *Constants) Save(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, c.coefs)
}

// Load reads a table written by Save. The blob carries no header; its
// method count M follows from its size of M*(M+2)*(M+1) values. A blob with
// more methods than requested is accepted and only the leading methods are
// read, each with the blob's own stage stride.
func Load(r io.Reader, methods int) (*Constants, error) {
	if methods < 2 {
		return nil, fmt.Errorf("%w: %d methods", dynamo.ErrMethodCount, methods)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	have, ok := blobMethods(len(data))
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes is no [M][M+2][M+1] table", dynamo.ErrTableauMismatch, len(data))
	}
	if have < methods {
		return nil, fmt.Errorf("%w: blob holds %d methods, need %d", dynamo.ErrTableauMismatch, have, methods)
	}

	c := newConstants(methods)
	stride := have + 1
	for m := 0; m < methods; m++ {
		for s := 0; s <= c.Stages; s++ {
			row := c.Row(m, s)
			for k := range row {
				off := ((m*(stride+1)+s)*stride + k) * 8
				row[k] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
			}
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// blobMethods returns the method count of a blob of n bytes.
func blobMethods(n int) (int, bool) {
	if n == 0 || n%8 != 0 {
		return 0, false
	}
	values := n / 8
	for m := 1; ; m++ {
		switch size := m * (m + 2) * (m + 1); {
		case size == values:
			return m, true
		case size > values:
			return 0, false
		}
	}
}
