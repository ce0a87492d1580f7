package npz

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// npyMagic is the 6-byte signature opening every .npy file.
const npyMagic = "\x93NUMPY"

// npyHeader is the parsed form of the python dict literal that follows
// the magic in an .npy file.
type npyHeader struct {
	descr   string
	fortran bool
	shape   []int
}

// writeNPY encodes one version-1.0 .npy record. The raw element bytes
// are produced by the put callback so float64 and int64 payloads share
// the header logic.
func writeNPY(w io.Writer, descr string, shape []int, count int, put func(io.Writer) error) error {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeLiteral(shape))

	// Total of magic+version+length prefix+dict+newline must be a
	// multiple of 64 per the format spec.
	prefix := len(npyMagic) + 2 + 2
	padded := prefix + len(dict) + 1
	if rem := padded % 64; rem != 0 {
		padded += 64 - rem
	}
	headerLen := padded - prefix

	if _, err := w.Write([]byte(npyMagic)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(headerLen)); err != nil {
		return err
	}
	header := dict + strings.Repeat(" ", headerLen-len(dict)-1) + "\n"
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if n := volume(shape); n != count {
		return fmt.Errorf("npz: shape %v holds %d elements, got %d", shape, n, count)
	}
	return put(w)
}

// shapeLiteral renders a shape the way numpy prints tuples:
// (), (5,), (2, 3).
func shapeLiteral(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	default:
		parts := make([]string, len(shape))
		for i, d := range shape {
			parts[i] = strconv.Itoa(d)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
}

// writeFloat64NPY encodes data as a little-endian <f8 array.
func writeFloat64NPY(w io.Writer, shape []int, data []float64) error {
	return writeNPY(w, "<f8", shape, len(data), func(w io.Writer) error {
		buf := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		_, err := w.Write(buf)
		return err
	})
}

// writeInt64NPY encodes data as a little-endian <i8 array.
func writeInt64NPY(w io.Writer, shape []int, data []int64) error {
	return writeNPY(w, "<i8", shape, len(data), func(w io.Writer) error {
		buf := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
		}
		_, err := w.Write(buf)
		return err
	})
}

// readNPYHeader consumes the magic, version and header dict.
func readNPYHeader(r io.Reader) (npyHeader, error) {
	var hdr npyHeader

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return hdr, fmt.Errorf("npz: reading npy magic: %w", err)
	}
	if string(magic[:len(npyMagic)]) != npyMagic {
		return hdr, fmt.Errorf("npz: bad npy magic %q", magic[:len(npyMagic)])
	}
	major := magic[len(npyMagic)]

	var headerLen int
	switch major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return hdr, fmt.Errorf("npz: reading npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return hdr, fmt.Errorf("npz: reading npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return hdr, fmt.Errorf("npz: unsupported npy version %d", major)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return hdr, fmt.Errorf("npz: reading npy header: %w", err)
	}
	return parseNPYDict(string(raw))
}

// parseNPYDict extracts descr, fortran_order and shape from the header
// dict literal. The writer side of numpy is stable enough that simple
// string scanning suffices; quoting style and spacing are tolerated.
func parseNPYDict(dict string) (npyHeader, error) {
	var hdr npyHeader

	descr, err := dictString(dict, "descr")
	if err != nil {
		return hdr, err
	}
	hdr.descr = descr

	switch {
	case strings.Contains(dict, "'fortran_order': True"), strings.Contains(dict, "\"fortran_order\": True"):
		hdr.fortran = true
	case strings.Contains(dict, "'fortran_order': False"), strings.Contains(dict, "\"fortran_order\": False"):
		hdr.fortran = false
	default:
		return hdr, fmt.Errorf("npz: npy header missing fortran_order: %q", dict)
	}

	open := strings.Index(dict, "(")
	end := strings.Index(dict, ")")
	if open < 0 || end < open {
		return hdr, fmt.Errorf("npz: npy header missing shape tuple: %q", dict)
	}
	for _, part := range strings.Split(dict[open+1:end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return hdr, fmt.Errorf("npz: bad shape dimension %q: %w", part, err)
		}
		hdr.shape = append(hdr.shape, d)
	}
	return hdr, nil
}

// dictString pulls the quoted value for a key out of the header dict.
func dictString(dict, key string) (string, error) {
	for _, quoted := range []string{"'" + key + "'", "\"" + key + "\""} {
		i := strings.Index(dict, quoted)
		if i < 0 {
			continue
		}
		rest := dict[i+len(quoted):]
		j := strings.IndexAny(rest, "'\"")
		if j < 0 {
			break
		}
		quote := rest[j]
		rest = rest[j+1:]
		k := strings.IndexByte(rest, quote)
		if k < 0 {
			break
		}
		return rest[:k], nil
	}
	return "", fmt.Errorf("npz: npy header missing %s: %q", key, dict)
}

// readNPY decodes one .npy record into an Array, converting any of the
// supported element types to float64.
func readNPY(r io.Reader) (*Array, error) {
	hdr, err := readNPYHeader(r)
	if err != nil {
		return nil, err
	}
	if hdr.fortran {
		return nil, fmt.Errorf("npz: fortran-order arrays are not supported")
	}

	var elemSize int
	switch hdr.descr {
	case "<f8", "<i8":
		elemSize = 8
	case "<f4", "<i4":
		elemSize = 4
	default:
		return nil, fmt.Errorf("npz: unsupported npy dtype %q", hdr.descr)
	}

	n := volume(hdr.shape)
	raw := make([]byte, n*elemSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("npz: reading npy payload: %w", err)
	}

	data := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := raw[i*elemSize:]
		switch hdr.descr {
		case "<f8":
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case "<f4":
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case "<i8":
			data[i] = float64(int64(binary.LittleEndian.Uint64(chunk)))
		case "<i4":
			data[i] = float64(int32(binary.LittleEndian.Uint32(chunk)))
		}
	}
	return NewArray(hdr.shape, data)
}
