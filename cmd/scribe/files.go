// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/invowk/scribe/internal/issue"
)

// stdinName labels input read from standard input.
const stdinName = "(stdin)"

// source is one document given on the command line.
type source struct {
	name string
	text string
}

// readSources reads every path, or stdin when paths is empty or "-".
func readSources(stdin io.Reader, paths []string) ([]source, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		if path == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			sources = append(sources, source{name: stdinName, text: string(data)})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fileError("read file", path, err)
		}
		sources = append(sources, source{name: path, text: string(data)})
	}
	return sources, nil
}

// writeFile replaces path's contents, keeping its permissions.
func writeFile(path, content string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fileError("write file", path, err)
	}
	if err := os.WriteFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return fileError("write file", path, err)
	}
	return nil
}

func fileError(op, path string, err error) error {
	ctx := issue.NewErrorContext().WithOperation(op).WithResource(path).Wrap(err)
	switch {
	case os.IsNotExist(err):
		ctx.WithSuggestion("Check the path for typos").WithIssue(issue.FileNotFoundId)
	case os.IsPermission(err):
		ctx.WithSuggestion("Check the file permissions").WithIssue(issue.PermissionDeniedId)
	}
	return ctx.BuildError()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
