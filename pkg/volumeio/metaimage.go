package volumeio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"medialcurve/internal/models"
)

// ElementType is a MetaImage sample type such as MET_FLOAT
type ElementType string

const (
	MetUChar  ElementType = "MET_UCHAR"
	MetChar   ElementType = "MET_CHAR"
	MetUShort ElementType = "MET_USHORT"
	MetShort  ElementType = "MET_SHORT"
	MetUInt   ElementType = "MET_UINT"
	MetInt    ElementType = "MET_INT"
	MetFloat  ElementType = "MET_FLOAT"
	MetDouble ElementType = "MET_DOUBLE"
)

// Size returns the number of bytes per sample, or 0 for unknown types.
func (t ElementType) Size() int {
	switch t {
	case MetUChar, MetChar:
		return 1
	case MetUShort, MetShort:
		return 2
	case MetUInt, MetInt, MetFloat:
		return 4
	case MetDouble:
		return 8
	}
	return 0
}

// ParseElementType accepts either a MetaImage name or a short alias like "float".
func ParseElementType(s string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float", "met_float":
		return MetFloat, nil
	case "double", "met_double":
		return MetDouble, nil
	case "uchar", "met_uchar":
		return MetUChar, nil
	case "char", "met_char":
		return MetChar, nil
	case "ushort", "met_ushort":
		return MetUShort, nil
	case "short", "met_short":
		return MetShort, nil
	case "uint", "met_uint":
		return MetUInt, nil
	case "int", "met_int":
		return MetInt, nil
	}
	return "", fmt.Errorf("unknown element type %q", s)
}

// MetaImage is the codec for .mha (inline data) and .mhd (detached data) files.
type MetaImage struct{}

// metaHeader holds the fields of a MetaImage header that this codec understands
type metaHeader struct {
	dims        [3]int
	spacing     [3]float64
	origin      [3]float64
	direction   [9]float64
	elementType ElementType
	msb         bool
	compressed  bool
	dataFile    string
}

func defaultHeader() metaHeader {
	g := models.NewGrid(0, 0, 0)
	return metaHeader{
		spacing:   g.Spacing,
		direction: g.Direction,
	}
}

// Decode reads a MetaImage file.
func (MetaImage) Decode(path string) (*models.Volume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	hdr, offset, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if strings.EqualFold(hdr.dataFile, "LOCAL") {
		payload = raw[offset:]
	} else {
		dataPath := hdr.dataFile
		if !filepath.IsAbs(dataPath) {
			dataPath = filepath.Join(filepath.Dir(path), dataPath)
		}
		payload, err = os.ReadFile(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read element data: %w", err)
		}
	}

	if hdr.compressed {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed data: %w", err)
		}
		payload, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress data: %w", err)
		}
	}

	grid := models.Grid{
		Width:     hdr.dims[0],
		Height:    hdr.dims[1],
		Depth:     hdr.dims[2],
		Spacing:   hdr.spacing,
		Origin:    hdr.origin,
		Direction: hdr.direction,
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	n := grid.Len()
	size := hdr.elementType.Size()
	if len(payload) < n*size {
		return nil, fmt.Errorf("element data truncated: have %d bytes, need %d", len(payload), n*size)
	}

	vol := models.NewVolume(grid)
	var order binary.ByteOrder = binary.LittleEndian
	if hdr.msb {
		order = binary.BigEndian
	}
	decodeSamples(vol.Data, payload, hdr.elementType, order)
	return vol, nil
}

func parseHeader(raw []byte) (metaHeader, int, error) {
	hdr := defaultHeader()
	offset := 0
	ndims := 0
	channels := 1

	for offset < len(raw) {
		end := bytes.IndexByte(raw[offset:], '\n')
		var line string
		if end < 0 {
			line = string(raw[offset:])
			offset = len(raw)
		} else {
			line = string(raw[offset : offset+end])
			offset += end + 1
		}
		line = strings.TrimRight(line, "\r")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return hdr, 0, fmt.Errorf("malformed header line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch strings.ToLower(key) {
		case "objecttype":
			if !strings.EqualFold(value, "Image") {
				err = fmt.Errorf("unsupported ObjectType %q", value)
			}
		case "ndims":
			ndims, err = strconv.Atoi(value)
		case "dimsize":
			err = parseInts(value, hdr.dims[:])
		case "elementspacing", "elementsize":
			err = parseFloats(value, hdr.spacing[:])
		case "offset", "origin", "position":
			err = parseFloats(value, hdr.origin[:])
		case "transformmatrix", "orientation", "rotation":
			err = parseFloats(value, hdr.direction[:])
		case "elementtype":
			hdr.elementType = ElementType(strings.ToUpper(value))
			if hdr.elementType.Size() == 0 {
				err = fmt.Errorf("unsupported ElementType %q", value)
			}
		case "elementbyteordermsb", "binarydatabyteordermsb":
			hdr.msb = strings.EqualFold(value, "True")
		case "compresseddata":
			hdr.compressed = strings.EqualFold(value, "True")
		case "elementnumberofchannels":
			channels, err = strconv.Atoi(value)
		case "elementdatafile":
			hdr.dataFile = value
		}
		if err != nil {
			return hdr, 0, fmt.Errorf("header field %s: %w", key, err)
		}

		if strings.EqualFold(key, "ElementDataFile") {
			break
		}
	}

	if hdr.dataFile == "" {
		return hdr, 0, fmt.Errorf("header has no ElementDataFile")
	}
	if strings.EqualFold(hdr.dataFile, "LIST") || strings.Contains(hdr.dataFile, "%") {
		return hdr, 0, fmt.Errorf("multi-file element data %q is not supported", hdr.dataFile)
	}
	if ndims != 3 {
		return hdr, 0, fmt.Errorf("expected a 3D image, NDims = %d", ndims)
	}
	if channels != 1 {
		return hdr, 0, fmt.Errorf("expected a scalar image, ElementNumberOfChannels = %d", channels)
	}
	if hdr.elementType == "" {
		return hdr, 0, fmt.Errorf("header has no ElementType")
	}
	return hdr, offset, nil
}

func parseInts(s string, dst []int) error {
	fields := strings.Fields(s)
	if len(fields) < len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(fields))
	}
	for i := range dst {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func parseFloats(s string, dst []float64) error {
	fields := strings.Fields(s)
	if len(fields) < len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(fields))
	}
	for i := range dst {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func decodeSamples(dst []float64, src []byte, t ElementType, order binary.ByteOrder) {
	size := t.Size()
	for i := range dst {
		b := src[i*size : (i+1)*size]
		switch t {
		case MetUChar:
			dst[i] = float64(b[0])
		case MetChar:
			dst[i] = float64(int8(b[0]))
		case MetUShort:
			dst[i] = float64(order.Uint16(b))
		case MetShort:
			dst[i] = float64(int16(order.Uint16(b)))
		case MetUInt:
			dst[i] = float64(order.Uint32(b))
		case MetInt:
			dst[i] = float64(int32(order.Uint32(b)))
		case MetFloat:
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case MetDouble:
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
}

func encodeSamples(src []float64, t ElementType) []byte {
	size := t.Size()
	out := make([]byte, len(src)*size)
	order := binary.LittleEndian
	for i, v := range src {
		b := out[i*size : (i+1)*size]
		switch t {
		case MetUChar:
			b[0] = uint8(clampRound(v, 0, math.MaxUint8))
		case MetChar:
			b[0] = uint8(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
		case MetUShort:
			order.PutUint16(b, uint16(clampRound(v, 0, math.MaxUint16)))
		case MetShort:
			order.PutUint16(b, uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		case MetUInt:
			order.PutUint32(b, uint32(clampRound(v, 0, math.MaxUint32)))
		case MetInt:
			order.PutUint32(b, uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		case MetFloat:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case MetDouble:
			order.PutUint64(b, math.Float64bits(v))
		}
	}
	return out
}

func clampRound(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Encode writes a MetaImage file. A .mhd path gets a sibling .raw (or .zraw) data file.
func (MetaImage) Encode(vol *models.Volume, path string, opts WriteOptions) error {
	et := opts.ElementType
	if et == "" {
		et = MetFloat
	}
	if et.Size() == 0 {
		return fmt.Errorf("unsupported element type %q", et)
	}

	payload := encodeSamples(vol.Data, et)
	if opts.Compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		payload = buf.Bytes()
	}

	detached := strings.EqualFold(filepath.Ext(path), ".mhd")
	dataFile := "LOCAL"
	if detached {
		ext := ".raw"
		if opts.Compress {
			ext = ".zraw"
		}
		dataFile = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ext
	}

	var hdr bytes.Buffer
	w := bufio.NewWriter(&hdr)
	fmt.Fprintln(w, "ObjectType = Image")
	fmt.Fprintln(w, "NDims = 3")
	fmt.Fprintln(w, "BinaryData = True")
	fmt.Fprintln(w, "BinaryDataByteOrderMSB = False")
	fmt.Fprintf(w, "CompressedData = %s\n", metaBool(opts.Compress))
	if opts.Compress {
		fmt.Fprintf(w, "CompressedDataSize = %d\n", len(payload))
	}
	fmt.Fprintf(w, "TransformMatrix = %s\n", joinFloats(vol.Direction[:]))
	fmt.Fprintf(w, "Offset = %s\n", joinFloats(vol.Origin[:]))
	fmt.Fprintln(w, "CenterOfRotation = 0 0 0")
	fmt.Fprintf(w, "ElementSpacing = %s\n", joinFloats(vol.Spacing[:]))
	fmt.Fprintf(w, "DimSize = %d %d %d\n", vol.Width, vol.Height, vol.Depth)
	fmt.Fprintf(w, "ElementType = %s\n", et)
	fmt.Fprintf(w, "ElementDataFile = %s\n", dataFile)
	if err := w.Flush(); err != nil {
		return err
	}

	if detached {
		dataPath := filepath.Join(filepath.Dir(path), dataFile)
		if err := writeAtomic(dataPath, payload); err != nil {
			return err
		}
		if err := writeAtomic(path, hdr.Bytes()); err != nil {
			os.Remove(dataPath)
			return err
		}
		return nil
	}

	return writeAtomic(path, append(hdr.Bytes(), payload...))
}

func metaBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
