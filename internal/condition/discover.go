package condition

import (
	"fmt"
	"path/filepath"
	"plugin"
)

// registerFunc is the contract a discovered plugin .so must export: a
// function named "Register" with this signature. This is the Go-native
// reading of spec.md's "register(registrar)" contract — a directory scan
// that loads compiled plugin artifacts rather than Python source files.
type registerFunc func(Registrar)

// Discover scans dir for compiled plugin artifacts (*.so) and calls each
// one's exported Register function with r. A plugin that fails to load or
// doesn't export a matching Register symbol is skipped with an error in
// the returned slice; discovery of the remaining plugins continues.
func Discover(dir string, r Registrar) []error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return []error{fmt.Errorf("condition: scan %s: %w", dir, err)}
	}
	var errs []error
	for _, path := range matches {
		if err := loadOne(path, r); err != nil {
			errs = append(errs, fmt.Errorf("condition: load %s: %w", path, err))
		}
	}
	return errs
}

func loadOne(path string, r Registrar) error {
	p, err := plugin.Open(path)
	if err != nil {
		return err
	}
	sym, err := p.Lookup("Register")
	if err != nil {
		return err
	}
	register, ok := sym.(func(Registrar))
	if !ok {
		return fmt.Errorf("Register has unexpected signature")
	}
	register(r)
	return nil
}
