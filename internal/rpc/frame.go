package rpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxFrameSize bounds a single payload.
const MaxFrameSize = 64 << 20

const lengthHeader = "Content-Length"

var errMissingLength = errors.New("missing " + lengthHeader + " header")

// ReadFrame reads one "Content-Length: N\r\n\r\n<N bytes>" frame. A clean
// end of stream before the first header byte is io.EOF; anywhere else it
// is io.ErrUnexpectedEOF.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	n, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// readHeader consumes header lines up to the blank separator. Unknown
// headers are skipped.
func readHeader(r *bufio.Reader) (int, error) {
	length := -1
	for first := true; ; first = false {
		line, err := r.ReadString('\n')
		switch {
		case errors.Is(err, io.EOF) && first && line == "":
			return 0, io.EOF
		case errors.Is(err, io.EOF):
			return 0, io.ErrUnexpectedEOF
		case err != nil:
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), lengthHeader) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", lengthHeader, err)
		}
		if n < 0 || n > MaxFrameSize {
			return 0, fmt.Errorf("invalid %s %d", lengthHeader, n)
		}
		length = n
	}
	if length < 0 {
		return 0, errMissingLength
	}
	return length, nil
}

// WriteFrame writes the header and payload in one Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, len(payload)+32)
	buf = append(buf, lengthHeader+": "...)
	buf = strconv.AppendInt(buf, int64(len(payload)), 10)
	buf = append(buf, "\r\n\r\n"...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}
