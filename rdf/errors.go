package rdf

import (
	"errors"
	"strconv"
)

// Sentinel errors surfaced by Store operations, matching spec §4.1/§7.
var (
	ErrDuplicateGraph = errors.New("rdf: duplicate graph")
	ErrGraphNotFound  = errors.New("rdf: graph not found")
)

// QueryErrorKind classifies a SPARQL failure.
type QueryErrorKind string

const (
	QueryErrorSyntax QueryErrorKind = "syntax"
	QueryErrorEval   QueryErrorKind = "eval"
)

// QueryError is returned for any SPARQL syntax or evaluation failure. The
// store never panics on malformed queries (spec §4.1).
type QueryError struct {
	Kind     QueryErrorKind
	Message  string
	Position int
}

func (e *QueryError) Error() string {
	return string(e.Kind) + " error at position " + strconv.Itoa(e.Position) + ": " + e.Message
}
