package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// FileReader decodes a T from the file named by its --file flag, or from
// stdin when the flag is unset.
type FileReader[T any] struct {
	fileFlagValue string
}

func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to JSON file (reads from stdin if not provided)",
		Destination: &fr.fileFlagValue,
	}
}

// Provided reports whether a file was named or stdin is piped.
func (fr *FileReader[T]) Provided() bool {
	return fr.fileFlagValue != "" || !term.IsTerminal(int(os.Stdin.Fd()))
}

func (fr *FileReader[T]) Read() (T, error) {
	if fr.fileFlagValue != "" {
		return ReadFile[T](fr.fileFlagValue)
	}

	var input T
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return input, fmt.Errorf("no input provided (stdin is a terminal); use -f flag or pipe JSON input")
	}
	return Decode[T](os.Stdin)
}

// ReadFile decodes the JSON file at path into a T.
func ReadFile[T any](path string) (T, error) {
	var input T
	f, err := os.Open(path)
	if err != nil {
		return input, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode[T](f)
}

// Decode reads a single JSON value from r.
func Decode[T any](r io.Reader) (T, error) {
	var input T
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}
