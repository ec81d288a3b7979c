package catalog

import (
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// WalkFiles yields every regular file under root whose name ends with ext.
// A directory's files come before its subdirectories, which are visited depth
// first, and entries are in lexical order. Directory read errors are
// yielded with an empty path and the walk continues. Each range over the
// returned sequence starts a fresh walk.
func WalkFiles(root, ext string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stack := []string{root}
		for len(stack) > 0 {
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(dir)
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}

			var subdirs []string
			for _, e := range entries {
				path := filepath.Join(dir, e.Name())
				switch {
				case e.IsDir():
					subdirs = append(subdirs, path)
				case e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext):
					if !yield(path, nil) {
						return
					}
				}
			}
			slices.Reverse(subdirs)
			stack = append(stack, subdirs...)
		}
	}
}
