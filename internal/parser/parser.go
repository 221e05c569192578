package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// Options tunes how a file is read into a raw table.
type Options struct {
	// Delimiter overrides delimiter sniffing for delimited text.
	Delimiter rune
	// SheetName selects a workbook sheet by name.
	SheetName string
	// SheetIndex selects a workbook sheet by 1-based position when SheetName is empty.
	SheetIndex int
}

// Parser defines a call-log reader implementation.
type Parser interface {
	CanParse(filename string) bool
	Parse(r io.Reader, name string, opt Options) (*pipeline.RawTable, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// ErrUnsupported indicates a file format is not supported.
var ErrUnsupported = errors.New("unsupported file format")

// Supported reports whether some registered parser accepts filename.
func Supported(filename string) bool {
	return lookup(filename) != nil
}

func lookup(filename string) Parser {
	for _, p := range registry {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// Parse reads r with the parser registered for filename's extension.
func Parse(r io.Reader, filename string, opt Options) (*pipeline.RawTable, error) {
	p := lookup(filename)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(filename))
	}
	return p.Parse(r, filepath.Base(filename), opt)
}

// ParseFile opens path and parses it into a raw table.
func ParseFile(path string, opt Options) (*pipeline.RawTable, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path), opt)
}

func init() {
	// Register default parsers
	Register(delimitedParser{})
	Register(xlsxParser{})
}
