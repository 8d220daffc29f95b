package serial

import (
	"bufio"
	"io"
	"strings"

	goserial "go.bug.st/serial"
)

// BaudRate is the fixed line speed of the acquisition board.
const BaudRate = 115200

// LineSource yields newline-terminated lines from a device.
type LineSource interface {
	// ReadLine blocks until a complete line is available and returns it
	// without the trailing line terminator.
	ReadLine() (string, error)
	Close() error
}

// Opener opens a LineSource for a device path at the given baud rate.
type Opener func(device string, baud int) (LineSource, error)

// OpenDevice is the production Opener. It opens the port 8N1 and discards
// whatever the OS buffered before the open.
func OpenDevice(device string, baud int) (LineSource, error) {
	port, err := goserial.Open(device, &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	_ = port.ResetInputBuffer()
	return NewLineReader(port), nil
}

// NewLineReader splits rc into lines on '\n'.
func NewLineReader(rc io.ReadCloser) LineSource {
	return &lineReader{rc: rc, r: bufio.NewReaderSize(rc, 4096)}
}

type lineReader struct {
	rc io.ReadCloser
	r  *bufio.Reader
}

// ReadLine drops a trailing "\r\n" or "\n". A partial line cut off by an
// error is discarded.
func (l *lineReader) ReadLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (l *lineReader) Close() error {
	return l.rc.Close()
}
