package backends

import (
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// ObjectPage is one page of a bucket listing. Object paths and prefixes
// are raw keys.
type ObjectPage struct {
	Objects  []*metadata.Attributes
	Prefixes []string
	Next     string // continuation token, empty on the last page
}

// PageFetcher fetches the page starting at token for keys under prefix.
// delimiter is "/" for shallow listings and empty for deep ones.
type PageFetcher func(prefix, delimiter, token string) (ObjectPage, error)

// ListObjects turns a paged bucket listing into a lazy listing of logical
// entries. Keys ending in "/" are directory markers. Deep listings also
// yield every intermediate directory once.
func ListObjects(prefixer *pathutil.Prefixer, dir string, deep bool, fetch PageFetcher) iter.Seq2[*metadata.Attributes, error] {
	prefix := prefixer.PrefixDirectoryPath(dir)
	base := strings.Trim(dir, "/")
	delimiter := "/"
	if deep {
		delimiter = ""
	}

	logical := func(key string) string {
		return strings.Trim(prefixer.StripPrefix(key), "/")
	}

	return func(yield func(*metadata.Attributes, error) bool) {
		seen := make(map[string]struct{})
		emitDir := func(path string, modified time.Time) bool {
			if path == "" || path == base {
				return true
			}
			if _, ok := seen[path]; ok {
				return true
			}
			seen[path] = struct{}{}
			return yield(metadata.NewDirectory(path, modified), nil)
		}
		emitParents := func(path string) bool {
			var parents []string
			for p := pathutil.Dir(path); p != "" && p != base; p = pathutil.Dir(p) {
				if _, ok := seen[p]; ok {
					break
				}
				parents = append(parents, p)
			}
			for i := len(parents) - 1; i >= 0; i-- {
				if !emitDir(parents[i], time.Time{}) {
					return false
				}
			}
			return true
		}

		token := ""
		for {
			page, err := fetch(prefix, delimiter, token)
			if err != nil {
				yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", dir, err))
				return
			}

			for _, p := range page.Prefixes {
				if !emitDir(logical(p), time.Time{}) {
					return
				}
			}

			for _, object := range page.Objects {
				key := object.Path
				if key == prefix {
					continue
				}
				path := logical(key)
				if deep && !emitParents(path) {
					return
				}
				if strings.HasSuffix(key, "/") {
					if !emitDir(path, object.LastModified) {
						return
					}
					continue
				}
				if !yield(object.WithPath(path), nil) {
					return
				}
			}

			if page.Next == "" {
				return
			}
			token = page.Next
		}
	}
}

// ObjectURL joins a base URL and an object key, escaping each segment.
func ObjectURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// RewriteBase replaces the scheme, host and port of raw with those of
// base. The path and query of raw are kept as signed; any path in base
// is ignored.
func RewriteBase(raw, base string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Scheme = b.Scheme
	u.Host = b.Host
	return u.String(), nil
}
