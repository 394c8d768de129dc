package ply

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxHeaderBytes bounds how much text is consumed looking for end_header.
const MaxHeaderBytes = 1 << 20

// Header is the parsed textual header of a splat PLY file.
type Header struct {
	Magic            string
	Format           string
	Comments         []string
	VertexCount      int
	VertexProperties []Property
	Auxiliary        []Element // declaration order, after the vertex element
	DataOffset       int64     // first byte after the end_header line
}

// PointDataSize returns the byte length of the vertex array.
func (h *Header) PointDataSize() int64 {
	return int64(h.VertexCount) * RecordSize
}

// ConformsToSchema reports whether the declared vertex properties match the
// fixed 14-field record. Decoding assumes the fixed record regardless.
func (h *Header) ConformsToSchema() bool {
	if len(h.VertexProperties) != FieldsPerRecord {
		return false
	}
	for i, p := range h.VertexProperties {
		if p.Name != vertexSchema[i].Name {
			return false
		}
		if p.Type != "float" && p.Type != "float32" {
			return false
		}
	}
	return true
}

// AuxiliarySize returns the payload size implied by the auxiliary
// declarations. ok is false when any property is a list or an unknown type,
// since such elements cannot be sized from the header alone.
func (h *Header) AuxiliarySize() (size int64, ok bool) {
	for _, el := range h.Auxiliary {
		var stride int64
		for _, p := range el.Properties {
			n, known := ScalarSize(p.Type)
			if !known {
				return 0, false
			}
			stride += int64(n)
		}
		size += stride * int64(el.Count)
	}
	return size, true
}

// headerParser holds the state of one ParseHeader call.
type headerParser struct {
	h         *Header
	line      int
	sawVertex bool
	inVertex  bool
	current   *Element
}

// ParseHeader reads header lines from r up to and including end_header.
// The returned DataOffset counts the bytes consumed from the start of r, so
// r must be positioned at the start of the file. r may be read past the
// header; callers locate the data block through DataOffset.
func ParseHeader(r io.Reader) (*Header, error) {
	br := bufio.NewReader(r)
	p := &headerParser{h: &Header{}}
	var offset int64

	for {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &IOError{Op: "read header", Err: err}
		}
		offset += int64(len(raw))
		if offset > MaxHeaderBytes {
			return nil, &ParseError{Reason: fmt.Sprintf("header exceeds %d bytes without %s", MaxHeaderBytes, EndHeader)}
		}
		if raw == "" {
			return nil, &ParseError{Line: p.line, Reason: "missing " + EndHeader}
		}
		p.line++

		done, perr := p.parseLine(raw)
		if perr != nil {
			return nil, perr
		}
		if done {
			p.h.DataOffset = offset
			return p.h, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: p.line, Reason: "missing " + EndHeader}
		}
	}
}

// parseLine consumes one header line and reports whether it was end_header.
func (p *headerParser) parseLine(raw string) (bool, error) {
	text := strings.TrimSpace(strings.TrimRight(raw, "\r\n"))
	if !utf8.ValidString(text) {
		return false, p.fail(text, "line is not valid UTF-8")
	}

	if p.line == 1 {
		if text == "" || text == EndHeader {
			return false, p.fail(text, "missing magic line")
		}
		p.h.Magic = text
		return false, nil
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case EndHeader:
		return true, p.finish(text)
	case "format":
		if len(fields) != 3 {
			return false, p.fail(text, "format line needs a name and version")
		}
		if fields[1] != formatBinaryLE {
			return false, p.fail(text, fmt.Sprintf("unsupported format %q (only %s)", fields[1], formatBinaryLE))
		}
		p.h.Format = text
	case "comment", "obj_info":
		p.h.Comments = append(p.h.Comments, strings.TrimSpace(strings.TrimPrefix(text, fields[0])))
	case "element":
		return false, p.element(text, fields)
	case "property":
		return false, p.property(text, fields)
	default:
		return false, p.fail(text, fmt.Sprintf("unknown header keyword %q", fields[0]))
	}
	return false, nil
}

func (p *headerParser) element(text string, fields []string) error {
	if len(fields) != 3 {
		return p.fail(text, "element line needs a name and a count")
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil || count < 0 {
		return p.fail(text, fmt.Sprintf("invalid element count %q", fields[2]))
	}
	p.closeElement()

	name := fields[1]
	if name == VertexElement {
		if p.sawVertex {
			return p.fail(text, "duplicate vertex element")
		}
		p.sawVertex = true
		p.inVertex = true
		p.h.VertexCount = count
		return nil
	}
	if !p.sawVertex {
		return p.fail(text, fmt.Sprintf("element %q declared before the vertex element", name))
	}
	p.inVertex = false
	p.current = &Element{Name: name, Count: count}
	return nil
}

func (p *headerParser) property(text string, fields []string) error {
	var prop Property
	switch {
	case len(fields) >= 2 && fields[1] == "list":
		if len(fields) != 5 {
			return p.fail(text, "list property needs count type, item type and name")
		}
		prop = Property{Type: strings.Join(fields[1:4], " "), Name: fields[4]}
	case len(fields) == 3:
		prop = Property{Type: fields[1], Name: fields[2]}
	default:
		return p.fail(text, "property line needs a type and a name")
	}

	switch {
	case p.inVertex:
		p.h.VertexProperties = append(p.h.VertexProperties, prop)
	case p.current != nil:
		p.current.Properties = append(p.current.Properties, prop)
	default:
		return p.fail(text, "property declared before any element")
	}
	return nil
}

func (p *headerParser) finish(text string) error {
	p.closeElement()
	if p.h.Format == "" {
		return p.fail(text, "missing format line")
	}
	if !p.sawVertex {
		return p.fail(text, "missing vertex element")
	}
	return nil
}

// closeElement appends the open auxiliary element, if any.
func (p *headerParser) closeElement() {
	if p.current != nil {
		p.h.Auxiliary = append(p.h.Auxiliary, *p.current)
		p.current = nil
	}
}

func (p *headerParser) fail(text, reason string) error {
	return &ParseError{Line: p.line, Text: text, Reason: reason}
}
