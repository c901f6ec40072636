package ftp_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/backends/ftp"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/metadata"
)

// scriptedServer speaks enough FTP over loopback for the adapter: login,
// EPSV data channels, RETR, STOR, LIST, SIZE, DELE, MKD, CWD and PWD.
// Files live in memory keyed by their path without a leading slash.
type scriptedServer struct {
	ln net.Listener

	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	overrides map[string]string
}

func startScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &scriptedServer{
		ln:        ln,
		files:     map[string][]byte{},
		dirs:      map[string]bool{},
		overrides: map[string]string{},
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

// adapter returns an FTP adapter rooted at /srv on the server.
func (s *scriptedServer) adapter(t *testing.T, extra map[string]any) (*ftp.Adapter, config.Disk) {
	t.Helper()
	raw := map[string]any{
		"type":     "ftp",
		"host":     "127.0.0.1",
		"port":     s.ln.Addr().(*net.TCPAddr).Port,
		"username": "alice",
		"password": "wonderland",
		"root":     "/srv",
		"timeout":  5,
	}
	for k, v := range extra {
		raw[k] = v
	}
	disk := config.NewDisk("ftp", raw)
	a, err := ftp.New(disk, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, disk
}

// override answers every later verb command with reply.
func (s *scriptedServer) override(verb, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[verb] = reply
}

func (s *scriptedServer) put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

func (s *scriptedServer) file(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

func (s *scriptedServer) isDir(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" || s.dirs[name] {
		return true
	}
	for f := range s.files {
		if strings.HasPrefix(f, name+"/") {
			return true
		}
	}
	return false
}

// listing renders the direct children of dir in ls -l format.
func (s *scriptedServer) listing(dir string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := func(p string) string {
		if d := path.Dir(p); d != "." {
			return d
		}
		return ""
	}
	children := map[string]string{}
	for f, data := range s.files {
		if parent(f) == dir {
			children[path.Base(f)] = fmt.Sprintf("-rw-r--r-- 1 owner group %d Jan 02 15:04 %s", len(data), path.Base(f))
		}
		for d := parent(f); d != ""; d = parent(d) {
			if parent(d) == dir {
				children[path.Base(d)] = "drwxr-xr-x 1 owner group 0 Jan 02 15:04 " + path.Base(d)
			}
		}
	}
	for d := range s.dirs {
		if parent(d) == dir {
			children[path.Base(d)] = "drwxr-xr-x 1 owner group 0 Jan 02 15:04 " + path.Base(d)
		}
	}

	lines := make([]string, 0, len(children))
	for _, line := range children {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}

func (s *scriptedServer) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(format string, args ...any) {
		_ = tp.PrintfLine(format, args...)
	}

	var data net.Listener
	defer func() {
		if data != nil {
			data.Close()
		}
	}()
	// transfer accepts the pending data connection and runs fn on it.
	transfer := func(fn func(net.Conn)) {
		if data == nil {
			reply("425 use EPSV first")
			return
		}
		reply("150 opening data connection")
		dc, err := data.Accept()
		data.Close()
		data = nil
		if err != nil {
			reply("425 cannot open data connection")
			return
		}
		fn(dc)
		dc.Close()
		reply("226 transfer complete")
	}

	reply("220 scripted ftp ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)
		name := strings.Trim(arg, "/")

		s.mu.Lock()
		canned, overridden := s.overrides[verb]
		s.mu.Unlock()
		if overridden {
			reply("%s", canned)
			continue
		}

		switch verb {
		case "USER":
			reply("331 password required")
		case "PASS":
			if arg != "wonderland" {
				reply("530 login incorrect")
				continue
			}
			reply("230 logged in")
		case "TYPE", "NOOP":
			reply("200 ok")
		case "PWD":
			reply(`257 "/" is the current directory`)
		case "CWD":
			if s.isDir(name) {
				reply("250 directory changed")
			} else {
				reply("550 no such directory")
			}
		case "MKD":
			s.mu.Lock()
			s.dirs[name] = true
			s.mu.Unlock()
			reply(`257 "/%s" created`, name)
		case "SIZE":
			if contents, ok := s.file(name); ok {
				reply("213 %d", len(contents))
			} else {
				reply("550 no such file")
			}
		case "DELE":
			s.mu.Lock()
			_, ok := s.files[name]
			delete(s.files, name)
			s.mu.Unlock()
			if ok {
				reply("250 deleted")
			} else {
				reply("550 no such file")
			}
		case "EPSV":
			if data != nil {
				data.Close()
			}
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 cannot listen")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR":
			contents, ok := s.file(name)
			if !ok {
				if data != nil {
					data.Close()
					data = nil
				}
				reply("550 no such file")
				continue
			}
			transfer(func(dc net.Conn) { _, _ = dc.Write(contents) })
		case "STOR":
			transfer(func(dc net.Conn) {
				contents, _ := io.ReadAll(dc)
				s.put(name, contents)
			})
		case "LIST":
			lines := s.listing(name)
			transfer(func(dc net.Conn) {
				for _, l := range lines {
					_, _ = io.WriteString(dc, l+"\r\n")
				}
			})
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 %s not implemented", verb)
		}
	}
}

func TestAdapterRoundTrip(t *testing.T) {
	s := startScriptedServer(t)
	a, _ := s.adapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "docs/a.txt", []byte("hello"), nil))
	stored, ok := s.file("srv/docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(stored))

	data, err := a.Read(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	rc, err := a.ReadStream(ctx, "docs/a.txt")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(streamed))

	exists, err := a.FileExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = a.DirectoryExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := a.FileSize(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size.Size)

	require.NoError(t, a.Copy(ctx, "docs/a.txt", "docs/b.txt", nil))

	entries, err := backends.Collect(a.ListContents(ctx, "", true))
	require.NoError(t, err)
	var listed []string
	for _, e := range entries {
		listed = append(listed, e.Path)
	}
	sort.Strings(listed)
	assert.Equal(t, []string{"docs", "docs/a.txt", "docs/b.txt"}, listed)

	_, err = a.Read(ctx, "missing.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestAdapterDeleteIsIdempotent(t *testing.T) {
	s := startScriptedServer(t)
	a, _ := s.adapter(t, nil)
	ctx := context.Background()
	s.put("srv/a.txt", []byte("x"))

	require.NoError(t, a.Delete(ctx, "a.txt"))
	_, ok := s.file("srv/a.txt")
	assert.False(t, ok)

	require.NoError(t, a.Delete(ctx, "a.txt"))

	exists, err := a.FileExists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAdapterReportsNonMissingFailures(t *testing.T) {
	s := startScriptedServer(t)
	a, _ := s.adapter(t, nil)
	ctx := context.Background()
	s.put("srv/a.txt", []byte("x"))
	s.override("SIZE", "451 local error in processing")

	err := a.Delete(ctx, "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToDelete)
	assert.NotErrorIs(t, err, metadata.ErrNotFound)
	_, ok := s.file("srv/a.txt")
	assert.True(t, ok, "the file must stay in place")

	_, err = a.FileExists(ctx, "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToCheckExistence)
}

func TestDriverResponseOverFTP(t *testing.T) {
	s := startScriptedServer(t)
	a, disk := s.adapter(t, nil)
	s.put("srv/notes.txt", []byte("hello ftp"))

	d, err := core.NewDriver(disk, a, nil, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	done := make(chan error, 1)
	go func() {
		done <- d.Response(context.Background(), rec, "notes.txt", "", nil, core.DispositionInline)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Response did not complete")
	}

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello ftp", rec.Body.String())
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	exists, err := d.FileExists(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.True(t, exists, "the connection is usable after the stream closes")
}
