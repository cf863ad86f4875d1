package integrations

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sinteflow/sinte/pkg/schema"
)

// HandlerExt is the file extension of handler sources on disk.
const HandlerExt = ".lua"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DirResolver reads handlers from <root>/<provider>/<action>.lua.
// Files are read on every call, so edits are picked up without a restart.
type DirResolver struct {
	root string
}

// NewDirResolver creates a resolver rooted at root.
func NewDirResolver(root string) *DirResolver {
	return &DirResolver{root: root}
}

// Root returns the handler directory.
func (d *DirResolver) Root() string { return d.root }

func (d *DirResolver) Resolve(ctx context.Context, provider, action string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", schema.NewError(schema.ErrCodeCancelled, "handler lookup cancelled").WithCause(err)
	}
	if !namePattern.MatchString(provider) || !namePattern.MatchString(action) {
		return "", schema.NewErrorf(schema.ErrCodeResolution,
			"invalid handler name %q/%q: only letters, digits, '_' and '-' are allowed", provider, action)
	}

	path := filepath.Join(d.root, provider, action+HandlerExt)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", notFound(provider, action)
	}
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeResolution, "read handler %s/%s", provider, action).
			WithCause(err)
	}
	return string(data), nil
}

// Has reports whether a handler file exists for provider/action.
func (d *DirResolver) Has(provider, action string) bool {
	if !namePattern.MatchString(provider) || !namePattern.MatchString(action) {
		return false
	}
	info, err := os.Stat(filepath.Join(d.root, provider, action+HandlerExt))
	return err == nil && !info.IsDir()
}

// List returns every handler file under root, sorted.
func (d *DirResolver) List() ([]HandlerInfo, error) {
	providers, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var infos []HandlerInfo
	for _, p := range providers {
		if !p.IsDir() || !namePattern.MatchString(p.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(d.root, p.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			action, ok := strings.CutSuffix(f.Name(), HandlerExt)
			if f.IsDir() || !ok || !namePattern.MatchString(action) {
				continue
			}
			infos = append(infos, HandlerInfo{Provider: p.Name(), Action: action})
		}
	}
	sortInfos(infos)
	return infos, nil
}

var _ Resolver = (*DirResolver)(nil)
