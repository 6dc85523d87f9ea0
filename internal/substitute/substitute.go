// Package substitute performs literal placeholder substitution on simulator
// configuration templates.
//
// Substitution is purely textual: a token is replaced wherever it appears on a
// line, with no delimiter or escaping rules. A token that is a prefix of a
// longer marker (NUMHG inside NUMHGX) is replaced as well.
package substitute

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Replacement maps one placeholder token to the value written in its place.
type Replacement struct {
	Token string
	Value string
}

// ReplaceLine replaces every occurrence of token on line with value.
// Lines that do not contain the token are returned unchanged.
func ReplaceLine(line, token, value string) string {
	if token == "" || !strings.Contains(line, token) {
		return line
	}
	return strings.ReplaceAll(line, token, value)
}

// Apply copies r to w line by line, running every replacement over each line
// in order. Because tokens never span lines this produces the same output as
// one full pass over the file per replacement.
//
// Line terminators are preserved exactly, including a missing final newline.
func Apply(r io.Reader, w io.Writer, reps []Replacement) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			for _, rep := range reps {
				line = ReplaceLine(line, rep.Token, rep.Value)
			}
			if _, werr := bw.WriteString(line); werr != nil {
				return fmt.Errorf("writing substituted line: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing substituted output: %w", err)
	}
	return nil
}

// RenderFile copies the template at src to dst with reps applied.
// The output is written to a temporary file next to dst and renamed into
// place, so dst is either absent or complete.
func RenderFile(src, dst string, reps []Replacement) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening template: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if err := Apply(in, tmp, reps); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming config into place: %w", err)
	}
	return nil
}

// Unresolved returns the tokens that still occur somewhere in the file at path,
// in the order they were given.
func Unresolved(path string, tokens []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	content := string(data)

	var left []string
	for _, tok := range tokens {
		if tok != "" && strings.Contains(content, tok) {
			left = append(left, tok)
		}
	}
	return left, nil
}
