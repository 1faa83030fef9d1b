// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Very basic S-expression reader, used for textual DAG input.
// Supports integers (optionally negative), symbols, lists and
// ';' comments that run to the end of the line.

package util

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"tlog.app/go/errors"
)

type SExpKindT int

const (
	SExpInt SExpKindT = iota
	SExpSymbol
	SExpList
)

type SExpT struct {
	Kind    SExpKindT
	Integer int64
	Symbol  string
	List    []*SExpT
	Line    int // source line, for error messages
}

func (sexp *SExpT) String() string {
	switch sexp.Kind {
	case SExpInt:
		return fmt.Sprintf("%d", sexp.Integer)
	case SExpSymbol:
		return sexp.Symbol
	case SExpList:
		if len(sexp.List) == 0 {
			return "()"
		}
		result := "(" + sexp.List[0].String()
		for _, s := range sexp.List[1:] {
			result += " " + s.String()
		}
		return result + ")"
	}
	panic("bad S-expression")
}

func (sexp *SExpT) IsSymbol(name string) bool {
	return sexp.Kind == SExpSymbol && sexp.Symbol == name
}

// The symbol at the head of a list, or "" if there isn't one.
func (sexp *SExpT) Head() string {
	if sexp.Kind != SExpList || len(sexp.List) == 0 || sexp.List[0].Kind != SExpSymbol {
		return ""
	}
	return sexp.List[0].Symbol
}

// Reads all of the top-level S-expressions in 'data'.

func ParseSExps(data string) ([]*SExpT, error) {
	reader := &sexpReaderT{reader: bufio.NewReader(strings.NewReader(data)), line: 1}
	result := []*SExpT{}
	for {
		sexp, err := reader.read(0)
		if err == io.EOF {
			return result, nil
		} else if err != nil {
			return nil, err
		}
		result = append(result, sexp)
	}
}

type sexpReaderT struct {
	reader *bufio.Reader
	line   int
}

var errCloseParen = errors.New("unexpected ')'")

func (r *sexpReaderT) read(depth int) (*SExpT, error) {
	token, line, err := r.nextToken()
	if err != nil {
		if err == io.EOF && depth != 0 {
			return nil, errors.New("line %d: missing ')'", r.line)
		}
		return nil, err
	}
	switch token {
	case ")":
		if depth == 0 {
			return nil, errors.New("line %d: unexpected ')'", line)
		}
		return nil, errCloseParen
	case "(":
		list := &SExpT{Kind: SExpList, Line: line}
		for {
			next, err := r.read(depth + 1)
			if err == errCloseParen {
				return list, nil
			} else if err != nil {
				return nil, err
			}
			list.List = append(list.List, next)
		}
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return &SExpT{Kind: SExpInt, Integer: i, Line: line}, nil
	}
	return &SExpT{Kind: SExpSymbol, Symbol: token, Line: line}, nil
}

// Returns the next token and the line it started on.

func (r *sexpReaderT) nextToken() (string, int, error) {
	var contents strings.Builder
	for {
		c, _, err := r.reader.ReadRune()
		if err != nil {
			if contents.Len() != 0 && err == io.EOF {
				return contents.String(), r.line, nil
			}
			return "", r.line, err
		}
		if contents.Len() != 0 {
			if isSymbolConstituent(c) {
				contents.WriteRune(c)
				continue
			}
			r.reader.UnreadRune()
			return contents.String(), r.line, nil
		}
		switch {
		case c == '\n':
			r.line += 1
		case unicode.IsSpace(c):
		case c == ';':
			if _, err := r.reader.ReadString('\n'); err != nil {
				return "", r.line, err
			}
			r.line += 1
		case c == '(' || c == ')':
			return string(c), r.line, nil
		case isSymbolConstituent(c):
			contents.WriteRune(c)
		default:
			return "", r.line, errors.New("line %d: unrecognized character %s", r.line, strconv.QuoteRune(c))
		}
	}
}

func isSymbolConstituent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(":_*&-.%$", r)
}
