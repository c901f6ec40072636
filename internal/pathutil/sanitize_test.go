package pathutil

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
	}{
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "simple path",
			input:    "file.txt",
			expected: "file.txt",
		},
		{
			name:     "leading and trailing slashes",
			input:    "/dir/sub/",
			expected: "dir/sub",
		},
		{
			name:     "backslashes",
			input:    "dir\\sub\\file.txt",
			expected: "dir/sub/file.txt",
		},
		{
			name:     "safe relative navigation",
			input:    "dir/../file.txt",
			expected: "file.txt",
		},
		{
			name:     "current directory",
			input:    "./file.txt",
			expected: "file.txt",
		},
		{
			name:     "multiple slashes",
			input:    "dir//file.txt",
			expected: "dir/file.txt",
		},
		{
			name:        "directory traversal",
			input:       "../../../etc/passwd",
			shouldError: true,
		},
		{
			name:        "mixed traversal",
			input:       "dir/../../etc/passwd",
			shouldError: true,
		},
		{
			name:        "null byte",
			input:       "file\x00.txt",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Normalize(tt.input)

			if tt.shouldError {
				if !errors.Is(err, ErrPathTraversal) {
					t.Errorf("expected ErrPathTraversal for input %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("for input %q, expected %q, got %q", tt.input, tt.expected, result)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		segments []string
		expected string
	}{
		{[]string{"uploads", "a.txt"}, "uploads/a.txt"},
		{[]string{"/uploads/", "/a.txt"}, "uploads/a.txt"},
		{[]string{"", "a.txt"}, "a.txt"},
		{[]string{"uploads/", ""}, "uploads"},
	}

	for _, tt := range tests {
		if got := Join(tt.segments...); got != tt.expected {
			t.Errorf("Join(%q) = %q, want %q", tt.segments, got, tt.expected)
		}
	}
}
