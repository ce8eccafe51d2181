package rcs

import (
	"strconv"
)

// scanner is a whitespace/`;`/`:`/`,`-separated tokenizer over the whole
// archive buffer, with `@`-quoted and `%N\n` fast-format block support
// (spec.md §4.7.1).
type scanner struct {
	buf  []byte
	pos  int
	line int
}

const maxWordLen = 128

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (s *scanner) skipWS() {
	for s.pos < len(s.buf) && isSpace(s.buf[s.pos]) {
		if s.buf[s.pos] == '\n' {
			s.line++
		}
		s.pos++
	}
}

func (s *scanner) snippet() string {
	s.skipWS()
	end := s.pos + 16
	if end > len(s.buf) {
		end = len(s.buf)
	}
	return string(s.buf[s.pos:end])
}

// word reads the next whitespace/`;:,`-delimited token.
func (s *scanner) word() (string, error) {
	s.skipWS()
	start := s.pos
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if isSpace(c) || c == ';' || c == ':' || c == ',' {
			break
		}
		s.pos++
		if s.pos-start > maxWordLen {
			return "", errTokenTooBig()
		}
	}
	return string(s.buf[start:s.pos]), nil
}

func (s *scanner) expectPunct(p byte) error {
	s.skipWS()
	if s.pos >= len(s.buf) || s.buf[s.pos] != p {
		return errExpected(string(p), s.snippet())
	}
	s.pos++
	return nil
}

// peekPunct reports whether the next non-whitespace byte is p, without
// consuming it.
func (s *scanner) peekPunct(p byte) bool {
	s.skipWS()
	return s.pos < len(s.buf) && s.buf[s.pos] == p
}

func (s *scanner) peekWord(w string) bool {
	save := s.pos
	saveLine := s.line
	got, err := s.word()
	s.pos = save
	s.line = saveLine
	return err == nil && got == w
}

func (s *scanner) atBlock() ([]byte, error) {
	s.skipWS()
	if s.pos >= len(s.buf) || s.buf[s.pos] != '@' {
		return nil, errExpected("@", s.snippet())
	}
	s.pos++
	var out []byte
	for {
		if s.pos >= len(s.buf) {
			return nil, errEofInAt()
		}
		c := s.buf[s.pos]
		if c == '@' {
			if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '@' {
				out = append(out, '@')
				s.pos += 2
				continue
			}
			s.pos++
			return out, nil
		}
		if c == '\n' {
			s.line++
		}
		out = append(out, c)
		s.pos++
	}
}

func (s *scanner) fastBlock(n int) ([]byte, error) {
	if n < 0 || s.pos+n > len(s.buf) {
		return nil, errEofInAt()
	}
	b := append([]byte(nil), s.buf[s.pos:s.pos+n]...)
	s.pos += n
	for _, c := range b {
		if c == '\n' {
			s.line++
		}
	}
	return b, nil
}

// readChunk reads either a legacy `@..@` block or a fast-format `%N\n`
// length-prefixed block (spec.md §4.7.1).
func (s *scanner) readChunk() (RcsChunk, error) {
	s.skipWS()
	if s.pos < len(s.buf) && s.buf[s.pos] == '%' {
		s.pos++
		start := s.pos
		for s.pos < len(s.buf) && s.buf[s.pos] != '\n' {
			s.pos++
		}
		nStr := string(s.buf[start:s.pos])
		if s.pos < len(s.buf) {
			s.pos++
			s.line++
		}
		n, err := strconv.Atoi(nStr)
		if err != nil {
			return RcsChunk{}, errParse(s.line, "bad fast-format length %q", nStr)
		}
		b, err := s.fastBlock(n)
		if err != nil {
			return RcsChunk{}, err
		}
		return RcsChunk{Bytes: b, Policy: Double}, nil
	}
	b, err := s.atBlock()
	if err != nil {
		return RcsChunk{}, err
	}
	return RcsChunk{Bytes: b, Policy: Single}, nil
}

func (s *scanner) readRevList() ([]RevId, error) {
	var out []RevId
	for !s.peekPunct(';') {
		w, err := s.word()
		if err != nil {
			return nil, err
		}
		if w == "" {
			break
		}
		id, err := ParseRevId(w)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Parse reads an RCS ",v" archive body (spec.md §4.7.1). If stopRev is
// non-empty, parsing may stop once that trunk revision's body has been
// read.
func Parse(data []byte, stopRev RevId) (*RcsArchive, error) {
	s := &scanner{buf: data, line: 1}
	a := &RcsArchive{}

	kw, err := s.word()
	if err != nil {
		return nil, err
	}
	if kw != "head" {
		return nil, errExpected("head", kw)
	}
	headStr, err := s.word()
	if err != nil {
		return nil, err
	}
	if a.Head, err = ParseRevId(headStr); err != nil {
		return nil, err
	}
	if err := s.expectPunct(';'); err != nil {
		return nil, err
	}

	if s.peekWord("branch") {
		s.word()
		br, err := s.word()
		if err != nil {
			return nil, err
		}
		if a.BranchRoot, err = ParseRevId(br); err != nil {
			return nil, err
		}
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}
	}

	if kw, err = s.word(); err != nil {
		return nil, err
	} else if kw != "access" {
		return nil, errExpected("access", kw)
	}
	for !s.peekPunct(';') {
		w, err := s.word()
		if err != nil {
			return nil, err
		}
		if w == "" {
			break
		}
		a.Access = append(a.Access, w)
	}
	if err := s.expectPunct(';'); err != nil {
		return nil, err
	}

	if kw, err = s.word(); err != nil {
		return nil, err
	} else if kw != "symbols" {
		return nil, errExpected("symbols", kw)
	}
	for !s.peekPunct(';') {
		name, err := s.word()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		if err := s.expectPunct(':'); err != nil {
			return nil, err
		}
		rs, err := s.word()
		if err != nil {
			return nil, err
		}
		rev, err := ParseRevId(rs)
		if err != nil {
			return nil, err
		}
		a.Symbols = append(a.Symbols, SymbolDef{Name: name, Rev: rev})
	}
	if err := s.expectPunct(';'); err != nil {
		return nil, err
	}

	if kw, err = s.word(); err != nil {
		return nil, err
	} else if kw != "locks" {
		return nil, errExpected("locks", kw)
	}
	for !s.peekPunct(';') {
		user, err := s.word()
		if err != nil {
			return nil, err
		}
		if user == "" {
			break
		}
		if err := s.expectPunct(':'); err != nil {
			return nil, err
		}
		rs, err := s.word()
		if err != nil {
			return nil, err
		}
		rev, err := ParseRevId(rs)
		if err != nil {
			return nil, err
		}
		a.Locks = append(a.Locks, LockDef{User: user, Rev: rev})
	}
	if err := s.expectPunct(';'); err != nil {
		return nil, err
	}

	if s.peekWord("strict") {
		s.word()
		a.Strict = true
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}
	}

	// A required comment, then an optional expand, in that order; any other
	// admin keyword here (such as format or ext) is rejected as an error.
	if kw, err = s.word(); err != nil {
		return nil, err
	} else if kw != "comment" {
		return nil, errExpected("comment", kw)
	}
	commentChunk, err := s.readChunk()
	if err != nil {
		return nil, err
	}
	a.Comment = string(commentChunk.Bytes)
	if err := s.expectPunct(';'); err != nil {
		return nil, err
	}

	if s.peekWord("expand") {
		s.word()
		expandChunk, err := s.readChunk()
		if err != nil {
			return nil, err
		}
		a.ExpandMode = string(expandChunk.Bytes)
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}
	}

	// Revision admin headers, repeated until "desc".
	revByName := map[string]*RcsRev{}
	for !s.peekWord("desc") {
		nameStr, err := s.word()
		if err != nil {
			return nil, err
		}
		if nameStr == "" {
			return nil, errParse(s.line, "expected revision or desc")
		}
		name, err := ParseRevId(nameStr)
		if err != nil {
			return nil, err
		}
		rev := &RcsRev{Name: name}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "date" {
			return nil, errExpected("date", kw)
		}
		date, err := s.word()
		if err != nil {
			return nil, err
		}
		rev.Date = date
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "author" {
			return nil, errExpected("author", kw)
		}
		if rev.Author, err = s.word(); err != nil {
			return nil, err
		}
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "state" {
			return nil, errExpected("state", kw)
		}
		if rev.State, err = s.word(); err != nil {
			return nil, err
		}
		rev.Deleted = rev.State == "dead"
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "branches" {
			return nil, errExpected("branches", kw)
		}
		if rev.Branches, err = s.readRevList(); err != nil {
			return nil, err
		}
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "next" {
			return nil, errExpected("next", kw)
		}
		if !s.peekPunct(';') {
			nextStr, err := s.word()
			if err != nil {
				return nil, err
			}
			if rev.Next, err = ParseRevId(nextStr); err != nil {
				return nil, err
			}
		}
		if err := s.expectPunct(';'); err != nil {
			return nil, err
		}

		a.Revs = append(a.Revs, rev)
		revByName[rev.Name.String()] = rev
	}

	s.word() // consume "desc"
	descChunk, err := s.readChunk()
	if err != nil {
		return nil, err
	}
	a.Desc = string(descChunk.Bytes)

	// Revision bodies (log + text), in file order.
	for !atEOFWord(s) {
		nameStr, err := s.word()
		if err != nil {
			return nil, err
		}
		if nameStr == "" {
			break
		}
		name, err := ParseRevId(nameStr)
		if err != nil {
			return nil, err
		}
		rev, ok := revByName[name.String()]
		if !ok {
			return nil, errNoRev(name.String())
		}

		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "log" {
			return nil, errExpected("log", kw)
		}
		if rev.Log, err = s.readChunk(); err != nil {
			return nil, err
		}

		// Per-rev newphrase keywords are not skipped: any word between log
		// and text is an ExpectedToken error.
		if kw, err = s.word(); err != nil {
			return nil, err
		} else if kw != "text" {
			return nil, errExpected("text", kw)
		}
		if rev.Text, err = s.readChunk(); err != nil {
			return nil, err
		}

		if !stopRev.Empty() && name.String() == stopRev.String() {
			break
		}
	}

	return a, nil
}

func atEOFWord(s *scanner) bool {
	save, saveLine := s.pos, s.line
	s.skipWS()
	eof := s.pos >= len(s.buf)
	s.pos, s.line = save, saveLine
	return eof
}
