package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"kudos-web/internal/storage"
)

//go:embed locales
var embedded embed.FS

// Source reads translation files by slash separated path. A missing file
// must be reported with an error wrapping fs.ErrNotExist.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

type fsSource struct {
	fsys fs.FS
}

// FSSource reads bundles from a file system, e.g. os.DirFS("public/locales").
func FSSource(fsys fs.FS) Source {
	return fsSource{fsys: fsys}
}

// EmbeddedSource serves the bundles compiled into the binary.
func EmbeddedSource() Source {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return fsSource{fsys: sub}
}

func (s fsSource) ReadFile(_ context.Context, name string) ([]byte, error) {
	return fs.ReadFile(s.fsys, name)
}

// ObjectStore reads and lists objects in a bucket.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
}

// lister is implemented by sources that can tell up front which bundles
// exist, saving a round trip per missing language.
type lister interface {
	List(ctx context.Context) (map[string]bool, error)
}

type objectSource struct {
	store  ObjectStore
	bucket string
	prefix string
}

// ObjectSource reads bundles from an object store under bucket/prefix.
func ObjectSource(store ObjectStore, bucket, prefix string) Source {
	return objectSource{store: store, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s objectSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(s.prefix, name)
	data, err := s.store.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// List returns the names, relative to the prefix, of every object stored
// under it.
func (s objectSource) List(ctx context.Context) (map[string]bool, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	objects, err := s.store.ListObjects(ctx, s.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}
	names := make(map[string]bool, len(objects))
	for _, obj := range objects {
		names[strings.TrimPrefix(obj.Key, prefix)] = true
	}
	return names, nil
}

// expandPath fills the {{lng}} and {{ns}} placeholders of a load path template.
func expandPath(template, lng, ns string) string {
	return strings.NewReplacer("{{lng}}", lng, "{{ns}}", ns).Replace(template)
}
