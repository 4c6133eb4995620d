// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package filter parses and renders the stack-frame filter file format:
// a disjunction of conjunctions of SYM/EXEC/ANY predicates, with clauses
// separated by a literal "OR" line and "#" comments.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// PredicateKind selects which part of a stack frame a Predicate matches
// against.
type PredicateKind string

const (
	Sym  PredicateKind = "SYM"
	Exec PredicateKind = "EXEC"
	Any  PredicateKind = "ANY"
)

// Predicate is a single "KIND <regex>" condition.
type Predicate struct {
	Kind     PredicateKind
	Regex    string
	compiled *regexp.Regexp
}

// Compile pre-compiles the predicate's regex, returning an error if it is
// not valid. Match fails closed (returns false) if called before Compile
// succeeds.
func (p *Predicate) Compile() error {
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return fmt.Errorf("compiling %s predicate %q: %w", p.Kind, p.Regex, err)
	}
	p.compiled = re
	return nil
}

// Match evaluates the predicate against a symbol name and an executable
// path, per spec.md's SYM/EXEC/ANY semantics.
func (p *Predicate) Match(sym, exec string) bool {
	if p.compiled == nil {
		return false
	}
	switch p.Kind {
	case Sym:
		return p.compiled.MatchString(sym)
	case Exec:
		return p.compiled.MatchString(exec)
	case Any:
		return p.compiled.MatchString(sym) || p.compiled.MatchString(exec)
	default:
		return false
	}
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s", p.Kind, p.Regex)
}

// Clause is a conjunction (AND) of predicates.
type Clause []Predicate

// Matches returns true iff every predicate in the clause matches.
func (c Clause) Matches(sym, exec string) bool {
	for _, p := range c {
		if !p.Match(sym, exec) {
			return false
		}
	}
	return true
}

// Pattern is a disjunction (OR) of clauses: it matches a frame if any
// clause matches.
type Pattern []Clause

// Matches returns true iff at least one clause matches.
func (pat Pattern) Matches(sym, exec string) bool {
	for _, c := range pat {
		if c.Matches(sym, exec) {
			return true
		}
	}
	return false
}

var predicateLine = regexp.MustCompile(`^(SYM|EXEC|ANY) (.+)$`)

// Parse reads the filter file format from r. A syntax error (a non-empty,
// non-comment line that is neither "OR" nor a well-formed predicate) is
// fatal and returned as an error with the offending line number.
func Parse(r io.Reader) (Pattern, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pattern Pattern
	var clause Clause
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()

		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if text == "OR" {
			pattern = append(pattern, clause)
			clause = nil
			continue
		}

		match := predicateLine.FindStringSubmatch(text)
		if match == nil {
			return nil, fmt.Errorf("line %d: syntax error: %q is not \"OR\" or a SYM/EXEC/ANY predicate", line, text)
		}

		pred := Predicate{Kind: PredicateKind(match[1]), Regex: match[2]}
		if err := pred.Compile(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		clause = append(clause, pred)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading filter pattern: %w", err)
	}

	if len(clause) > 0 {
		pattern = append(pattern, clause)
	}

	return pattern, nil
}

// Render serializes the pattern back to the filter file format, preserving
// clause order and predicate order within a clause. Round-tripping
// Parse(Render(p)) yields a Pattern equal in meaning to p (minus comments
// and blank lines, which are not retained).
func (pat Pattern) Render(w io.Writer) error {
	for i, clause := range pat {
		if i > 0 {
			if _, err := fmt.Fprintln(w, "OR"); err != nil {
				return fmt.Errorf("writing clause separator: %w", err)
			}
		}
		for _, pred := range clause {
			if _, err := fmt.Fprintln(w, pred.String()); err != nil {
				return fmt.Errorf("writing predicate: %w", err)
			}
		}
	}
	return nil
}
