// Package protocol implements the controller side of the roof serial protocol.
//
// Commands are single characters terminated by CR or LF:
//
//	?  report STOPPED, OPEN, CLOSED, OPENING or CLOSING
//	O  open
//	C  close
//	S  stop
//
// Accepted commands are answered with "$", anything else with "?".
package protocol

import (
	"io"
	"log"

	"github.com/w1xm/covers_interface/sequencer"
)

// BufferSize is the longest command kept; later bytes on the line are dropped.
const BufferSize = 16

const (
	Accepted = "$"
	Rejected = "?"
)

// Handler is the state the protocol reads and changes.
type Handler interface {
	Status() sequencer.Status
	Request(st sequencer.State) error
}

// Parser accumulates bytes into commands. It is not safe for concurrent use.
type Parser struct {
	handler    Handler
	terminator string
	buf        [BufferSize]byte
	n          int
}

func NewParser(handler Handler, terminator string) *Parser {
	return &Parser{handler: handler, terminator: terminator}
}

// Parse consumes one byte and returns the reply if it completed a command.
func (p *Parser) Parse(b byte) (reply string, ok bool) {
	if b != '\r' && b != '\n' {
		if p.n < len(p.buf) {
			p.buf[p.n] = b
			p.n++
		}
		return "", false
	}
	if p.n == 0 {
		// Second half of a CRLF, or a blank line.
		return "", false
	}
	reply = p.dispatch(p.buf[:p.n]) + p.terminator
	p.n = 0
	return reply, true
}

func (p *Parser) dispatch(cmd []byte) string {
	if len(cmd) != 1 {
		return Rejected
	}
	var st sequencer.State
	switch cmd[0] {
	case '?':
		return p.handler.Status().Label()
	case 'O':
		st = sequencer.Open
	case 'C':
		st = sequencer.Closed
	case 'S':
		st = sequencer.Stopped
	default:
		return Rejected
	}
	if err := p.handler.Request(st); err != nil {
		log.Printf("requesting %v: %v", st, err)
	}
	return Accepted
}

// Feed parses data and writes every reply to w.
func (p *Parser) Feed(data []byte, w io.Writer) error {
	for _, b := range data {
		reply, ok := p.Parse(b)
		if !ok {
			continue
		}
		if _, err := io.WriteString(w, reply); err != nil {
			return err
		}
	}
	return nil
}
