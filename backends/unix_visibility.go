package backends

import (
	"os"
	"strconv"
)

// UnixVisibility converts between portable visibility and POSIX
// permission bits for the local and SFTP adapters.
type UnixVisibility struct {
	FilePublic       os.FileMode
	FilePrivate      os.FileMode
	DirectoryPublic  os.FileMode
	DirectoryPrivate os.FileMode
	Default          Visibility // applied to directories created implicitly
}

// NewUnixVisibility returns the conventional 0644/0600/0755/0700 mapping.
func NewUnixVisibility(defaultVisibility Visibility) UnixVisibility {
	if defaultVisibility == "" {
		defaultVisibility = Private
	}
	return UnixVisibility{
		FilePublic:       0o644,
		FilePrivate:      0o600,
		DirectoryPublic:  0o755,
		DirectoryPrivate: 0o700,
		Default:          defaultVisibility,
	}
}

// UnixVisibilityFromMap overrides the defaults with a permissions map of
// the form {file: {public: 0644, private: 0600}, dir: {...}}. Values may be
// integers or octal strings.
func UnixVisibilityFromMap(permissions map[string]any, defaultVisibility Visibility) UnixVisibility {
	v := NewUnixVisibility(defaultVisibility)
	if file, ok := permissions["file"].(map[string]any); ok {
		v.FilePublic = parseMode(file["public"], v.FilePublic)
		v.FilePrivate = parseMode(file["private"], v.FilePrivate)
	}
	if dir, ok := permissions["dir"].(map[string]any); ok {
		v.DirectoryPublic = parseMode(dir["public"], v.DirectoryPublic)
		v.DirectoryPrivate = parseMode(dir["private"], v.DirectoryPrivate)
	}
	return v
}

// ForFile returns the file mode for visibility.
func (u UnixVisibility) ForFile(v Visibility) os.FileMode {
	if v == Public {
		return u.FilePublic
	}
	return u.FilePrivate
}

// ForDirectory returns the directory mode for visibility.
func (u UnixVisibility) ForDirectory(v Visibility) os.FileMode {
	if v == Public {
		return u.DirectoryPublic
	}
	return u.DirectoryPrivate
}

// DefaultForDirectories returns the mode used for implicit directories.
func (u UnixVisibility) DefaultForDirectories() os.FileMode {
	return u.ForDirectory(u.Default)
}

// InverseForFile maps file permission bits back to a visibility. Only an
// exact match of the public mode counts as public.
func (u UnixVisibility) InverseForFile(mode os.FileMode) Visibility {
	if mode.Perm() == u.FilePublic {
		return Public
	}
	return Private
}

// InverseForDirectory maps directory permission bits back to a visibility.
func (u UnixVisibility) InverseForDirectory(mode os.FileMode) Visibility {
	if mode.Perm() == u.DirectoryPublic {
		return Public
	}
	return Private
}

func parseMode(v any, fallback os.FileMode) os.FileMode {
	switch m := v.(type) {
	case int:
		return os.FileMode(m)
	case int64:
		return os.FileMode(m)
	case float64:
		return os.FileMode(int64(m))
	case string:
		if parsed, err := strconv.ParseUint(m, 8, 32); err == nil {
			return os.FileMode(parsed)
		}
	}
	return fallback
}
