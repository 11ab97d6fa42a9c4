// Package fasta streams protein FASTA files.
package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/trobanga/enzflow/internal/lib"
)

const maxLineBytes = 64 * 1024 * 1024

// Record is one FASTA entry
type Record struct {
	Header string   // Header line without the leading '>'
	Lines  []string // Sequence lines as read
}

// ID returns the first word of the header
func (r Record) ID() string {
	return HeaderID(r.Header)
}

// HeaderID returns the first whitespace-delimited word of a header line
func HeaderID(header string) string {
	header = strings.TrimPrefix(strings.TrimSpace(header), ">")
	if fields := strings.Fields(header); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Scan calls fn for each record in r. Text before the first header is ignored.
func Scan(r io.Reader, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var current *Record
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, ">") {
			if current != nil {
				if err := fn(*current); err != nil {
					return err
				}
			}
			current = &Record{Header: line[1:]}
			continue
		}
		if current != nil && strings.TrimSpace(line) != "" {
			current.Lines = append(current.Lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read FASTA: %w", err)
	}
	if current != nil {
		return fn(*current)
	}
	return nil
}

// ScanFile opens path and scans its records
func ScanFile(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return Scan(f, fn)
}

// Validate checks that path is a non-empty file with at least one header
// and returns the number of sequences.
func Validate(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, lib.ErrFileNotFound(path)
		}
		return 0, err
	}
	if info.Size() == 0 {
		return 0, lib.ErrEmptyInput(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	count := 0
	nonBlank := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		nonBlank = true
		if line[0] == '>' {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read FASTA: %w", err)
	}

	if !nonBlank {
		return 0, lib.ErrEmptyInput(path)
	}
	if count == 0 {
		return 0, lib.ErrNoSequences(path)
	}
	return count, nil
}

// WriteRecord writes rec with its original header
func WriteRecord(w io.Writer, rec Record) error {
	if _, err := fmt.Fprintf(w, ">%s\n", rec.Header); err != nil {
		return err
	}
	for _, l := range rec.Lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Exclude copies records from in to w whose ID is not in ids
func Exclude(in string, w io.Writer, ids map[string]struct{}) (kept int, err error) {
	bw := bufio.NewWriter(w)
	err = ScanFile(in, func(rec Record) error {
		if _, skip := ids[rec.ID()]; skip {
			return nil
		}
		kept++
		return WriteRecord(bw, rec)
	})
	if err != nil {
		return kept, err
	}
	return kept, bw.Flush()
}

// Subset copies the first record for each ID in ids, keeping its header
func Subset(in string, w io.Writer, ids map[string]struct{}) (written int, err error) {
	bw := bufio.NewWriter(w)
	seen := make(map[string]struct{}, len(ids))
	err = ScanFile(in, func(rec Record) error {
		id := rec.ID()
		if _, ok := ids[id]; !ok {
			return nil
		}
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}
		written++
		return WriteRecord(bw, rec)
	})
	if err != nil {
		return written, err
	}
	return written, bw.Flush()
}

// SequenceLength is the residue count of rec
func SequenceLength(rec Record) int {
	n := 0
	for _, l := range rec.Lines {
		n += len(strings.TrimSpace(l))
	}
	return n
}
