package comm

import "bytes"

// Parser decodes frames from a byte stream with arbitrary fragmentation.
type Parser struct {
	buf []byte
}

// Feed appends received bytes.
func (p *Parser) Feed(b []byte) {
	p.buf = append(p.buf, b...)
}

// Buffered returns the number of bytes not consumed yet.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset drops all buffered bytes.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Next decodes the next frame.
// It returns ErrNeedMoreBytes when less than a full frame is buffered.
// On ErrInvalidFrame or ErrChecksumMismatch, the bytes which can't start a
// valid frame have been discarded and Next should be called again.
func (p *Parser) Next() (Frame, error) {
	if len(p.buf) == 0 {
		return Frame{}, ErrNeedMoreBytes
	}
	if p.buf[0] != StartMarker {
		skip := bytes.IndexByte(p.buf, StartMarker)
		if skip < 0 {
			skip = len(p.buf)
		}
		p.discard(skip)
		return Frame{}, ErrInvalidFrame
	}
	frame, err := Decode(p.buf)
	switch err {
	case nil:
		p.discard(FrameSize)
	case ErrNeedMoreBytes:
	default:
		p.discard(1)
	}
	return frame, err
}

func (p *Parser) discard(n int) {
	rest := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}
