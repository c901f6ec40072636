package pathutil

import "testing"

func TestPrefixer_PrefixPath(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		sep      string
		input    string
		expected string
	}{
		{"root with relative path", "/data", "/", "a/b.txt", "/data/a/b.txt"},
		{"leading separator", "/data", "/", "/a/b.txt", "/data/a/b.txt"},
		{"trailing separator", "/data/", "/", "a/b/", "/data/a/b"},
		{"empty root", "", "/", "a.txt", "a.txt"},
		{"root is separator", "/", "/", "a.txt", "/a.txt"},
		{"empty path", "/data", "/", "", "/data/"},
		{"windows separator", "C:\\data", "\\", "a/b.txt", "C:\\data\\a\\b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrefixer(tt.root, tt.sep)
			if got := p.PrefixPath(tt.input); got != tt.expected {
				t.Errorf("PrefixPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPrefixer_Idempotent(t *testing.T) {
	p := NewPrefixer("/data", "/")
	for _, in := range []string{"a.txt", "/a.txt", "a.txt/", "//a.txt//"} {
		if got := p.PrefixPath(in); got != "/data/a.txt" {
			t.Errorf("PrefixPath(%q) = %q", in, got)
		}
	}
}

func TestPrefixer_DirectoryPaths(t *testing.T) {
	p := NewPrefixer("/data", "/")

	if got := p.PrefixDirectoryPath("dir"); got != "/data/dir/" {
		t.Errorf("PrefixDirectoryPath = %q", got)
	}
	if got := p.StripPrefix("/data/dir/a.txt"); got != "dir/a.txt" {
		t.Errorf("StripPrefix = %q", got)
	}
	if got := p.StripDirectoryPrefix("/data/dir/"); got != "dir" {
		t.Errorf("StripDirectoryPrefix = %q", got)
	}
}
