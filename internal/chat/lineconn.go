package chat

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"
	"unicode/utf8"
)

// LineConn is one client connection seen as newline-delimited text,
// independent of the transport underneath.
type LineConn interface {
	// ReadLine returns the next line without its terminator, or io.EOF
	// once the peer has finished sending.
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// streamConn frames a byte stream (TCP socket, SSH channel) into lines.
type streamConn struct {
	rw           io.ReadWriteCloser
	scanner      *bufio.Scanner
	remote       string
	eol          string
	writeTimeout time.Duration
}

// StreamOptions tunes NewStreamConn.
type StreamOptions struct {
	// MaxLineLength bounds a single inbound line; a longer one is a read error.
	MaxLineLength int
	// WriteTimeout bounds each line write when the stream supports deadlines.
	WriteTimeout time.Duration
	// CRLF terminates outbound lines with "\r\n" and also accepts a lone '\r'
	// as an inbound terminator, for terminal clients.
	CRLF bool
}

// NewStreamConn wraps rw. remote is only used for logging.
func NewStreamConn(rw io.ReadWriteCloser, remote string, opts StreamOptions) LineConn {
	limit := opts.MaxLineLength
	if limit <= 0 {
		limit = 64 * 1024
	}
	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, min(4096, limit)), limit)

	c := &streamConn{
		rw:           rw,
		scanner:      sc,
		remote:       remote,
		eol:          "\n",
		writeTimeout: opts.WriteTimeout,
	}
	if opts.CRLF {
		c.eol = "\r\n"
		sc.Split(terminalLineSplitter())
	}
	return c
}

// NewTCPConn wraps an accepted network connection.
func NewTCPConn(conn net.Conn, maxLine int, writeTimeout time.Duration) LineConn {
	return NewStreamConn(conn, conn.RemoteAddr().String(), StreamOptions{
		MaxLineLength: maxLine,
		WriteTimeout:  writeTimeout,
	})
}

func (c *streamConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return checkText(c.scanner.Text())
	}
	if err := c.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *streamConn) WriteLine(line string) error {
	if d, ok := c.rw.(deadliner); ok && c.writeTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.rw, line+c.eol)
	return err
}

func (c *streamConn) Close() error { return c.rw.Close() }

func (c *streamConn) RemoteAddr() string { return c.remote }

// terminalLineSplitter splits on "\n", "\r\n" or a lone "\r". A '\r' that ends
// the buffered data is a terminator right away; a '\n' arriving next is
// swallowed rather than read as an empty line.
func terminalLineSplitter() bufio.SplitFunc {
	skipLF := false
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if skipLF && len(data) > 0 {
			skipLF = false
			if data[0] == '\n' {
				return 1, nil, nil
			}
		}
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			if data[i] == '\r' {
				if i+1 == len(data) {
					skipLF = true
				} else if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// checkText rejects lines that are not UTF-8 text; the protocol carries
// nothing else.
func checkText(line string) (string, error) {
	if !utf8.ValidString(line) {
		return "", ErrInvalidUTF8
	}
	return line, nil
}

// isEndOfStream reports whether err only means the client went away.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
