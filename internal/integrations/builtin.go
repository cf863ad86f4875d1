package integrations

import (
	"embed"
	"io/fs"
	"path"
	"strings"
)

//go:embed builtin
var builtinFS embed.FS

// Builtins returns a Registry holding the handlers shipped with the binary,
// laid out as builtin/<provider>/<action>.lua.
func Builtins() (*Registry, error) {
	reg := NewRegistry()
	err := fs.WalkDir(builtinFS, "builtin", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		action, ok := strings.CutSuffix(path.Base(p), HandlerExt)
		if !ok {
			return nil
		}
		src, err := builtinFS.ReadFile(p)
		if err != nil {
			return err
		}
		return reg.Register(path.Base(path.Dir(p)), action, string(src))
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}
