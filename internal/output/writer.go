package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer writes SQL scripts: a commented header, statements separated by
// blank lines and an optional transaction around them.
type Writer struct {
	w             io.Writer
	delimiter     string
	transactional bool
}

// NewWriter creates a script writer. Statements are terminated with ";".
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, delimiter: ";"}
}

// SetDelimiter changes the statement terminator, e.g. "/" or "GO".
// Terminators that are words are written on a line of their own.
func (sw *Writer) SetDelimiter(d string) {
	if d = strings.TrimSpace(d); d != "" {
		sw.delimiter = d
	}
}

// WriteHeader writes the title as SQL comments and, when transactional,
// opens a transaction.
func (sw *Writer) WriteHeader(title string, transactional bool) error {
	sw.transactional = transactional
	for _, line := range strings.Split(strings.TrimSpace(title), "\n") {
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(sw.w, "-- %s\n", line); err != nil {
			return err
		}
	}
	if transactional {
		if _, err := fmt.Fprintln(sw.w, "BEGIN"+sw.terminator()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(sw.w)
	return err
}

// WriteComment writes a single comment line.
func (sw *Writer) WriteComment(text string) error {
	_, err := fmt.Fprintf(sw.w, "-- %s\n", strings.TrimSpace(text))
	return err
}

// WriteStatement writes one statement followed by a blank line. A
// missing terminator is added.
func (sw *Writer) WriteStatement(sql string) error {
	sql = strings.TrimRight(sql, " \t\r\n")
	if sql == "" {
		return nil
	}
	if !strings.HasSuffix(sql, sw.delimiter) {
		sql += sw.terminator()
	}
	_, err := fmt.Fprintf(sw.w, "%s\n\n", sql)
	return err
}

// WriteScript writes text that already contains terminated statements.
func (sw *Writer) WriteScript(script string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}
	_, err := fmt.Fprintf(sw.w, "%s\n\n", script)
	return err
}

// WriteFooter commits the transaction opened by WriteHeader.
func (sw *Writer) WriteFooter() error {
	if !sw.transactional {
		return nil
	}
	_, err := fmt.Fprintln(sw.w, "COMMIT"+sw.terminator())
	return err
}

func (sw *Writer) terminator() string {
	if isWord(sw.delimiter) {
		return "\n" + sw.delimiter
	}
	return sw.delimiter
}

func isWord(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return s != ""
}
