package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/runtime"
)

// An operation log shared between fakes. Promotion pipes two containers
// together from separate goroutines, so appends are locked.
type opLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *opLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// A scripted container recording every operation in a shared log.
type fakeContainer struct {
	id          string
	log         *opLog
	execs       []runtime.ExecSpec
	failCommand string // Commands containing this substring exit non-zero.
	toolVersion string // Output of the toolchain version command.
}

func (c *fakeContainer) record(format string, args ...any) {
	c.log.add(c.id + ": " + fmt.Sprintf(format, args...))
}

func (c *fakeContainer) ID() string { return c.id }

func (c *fakeContainer) Exec(_ context.Context, spec runtime.ExecSpec) (*runtime.ExecResult, error) {
	c.execs = append(c.execs, spec)

	user := "root"
	if spec.User != nil {
		user = fmt.Sprintf("%d:%d", spec.User.UID, spec.User.GID)
	}
	c.record("exec[%s] %s", user, spec.Command)

	if c.failCommand != "" && strings.Contains(spec.Command, c.failCommand) {
		return &runtime.ExecResult{ExitCode: 1, Stderr: "scripted failure"}, nil
	}

	switch {
	case strings.HasPrefix(spec.Command, "id -u"), strings.HasPrefix(spec.Command, "id -g"):
		return &runtime.ExecResult{Stdout: "1000\n"}, nil
	case strings.Contains(spec.Command, "--version"):
		return &runtime.ExecResult{Stdout: c.toolVersion}, nil
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) MkdirAll(_ context.Context, path string, _ *runtime.Identity) error {
	c.record("mkdir %s", path)
	return nil
}

func (c *fakeContainer) Chown(_ context.Context, path string, user runtime.Identity) error {
	c.record("chown %d:%d %s", user.UID, user.GID, path)
	return nil
}

func (c *fakeContainer) CopyTo(_ context.Context, r io.Reader, destDir string, user *runtime.Identity) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	c.record("copy-to %s", destDir)
	return nil
}

func (c *fakeContainer) CopyContentsFrom(_ context.Context, w io.Writer, dir string) error {
	c.record("copy-contents-from %s", dir)
	_, err := w.Write([]byte("artifact bytes"))
	return err
}

func (c *fakeContainer) Stop(_ context.Context) error {
	c.record("stop")
	return nil
}

func (c *fakeContainer) Export(_ context.Context, output string) error {
	c.record("export %s", output)
	return nil
}

func (c *fakeContainer) Destroy(_ context.Context) {
	c.record("destroy")
}

// A scripted starter handing out fake containers.
type fakeStarter struct {
	log             *opLog
	containers      map[string]*fakeContainer
	yardFailCommand string
	toolVersion     string
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{
		log:         &opLog{},
		containers:  make(map[string]*fakeContainer),
		toolVersion: "v22.1.0\n",
	}
}

func (s *fakeStarter) PullImage(_ context.Context, ref, platform string) error {
	s.log.add("pull " + ref)
	return nil
}

func (s *fakeStarter) StartContainer(_ context.Context, ref, id, platform string) (container, error) {
	s.log.add("start " + id)

	ctr := &fakeContainer{id: id, log: s.log, toolVersion: s.toolVersion}
	if strings.HasSuffix(id, "-yard") {
		ctr.failCommand = s.yardFailCommand
	}
	s.containers[id] = ctr
	return ctr, nil
}

// Writes a complete build context and returns a matching manifest.
func buildContext(t *testing.T) (string, *manifest.Manifest) {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("package.json", `{"name":"client"}`)
	write("package-lock.json", `{"lockfileVersion":3}`)
	write("src/main.ts", "export {}\n")
	write("browserslist", "last 2 versions\n")
	write("VERSION", "4.2.1\n")
	write("nginx.conf", "events {}\n")

	m := &manifest.Manifest{
		App: "client",
		Yard: manifest.Yard{
			Image:           "docker.io/library/node:22",
			Toolchain:       manifest.Toolchain{Command: "node --version", Range: ">=20.0.0 <23.0.0"},
			PackageManifest: "package.json",
			Lockfile:        "package-lock.json",
			Sources:         []string{"src"},
			Configs:         []string{"browserslist"},
			Install:         "npm ci",
			Compile:         "npm run build -- --output-path {{artifact}}",
			ArtifactDir:     "/build/dist",
		},
		Release: manifest.Release{File: "VERSION"},
		Berth: manifest.Berth{
			Image:        "docker.io/library/nginx:1.27",
			Config:       "nginx.conf",
			ConfigPath:   "/etc/nginx/nginx.conf",
			DocumentRoot: "/usr/share/nginx/html",
		},
	}
	require.NoError(t, m.Validate())

	return dir, m
}

func runPipeline(t *testing.T, rt *fakeStarter, dir string, m *manifest.Manifest) (*Result, error) {
	t.Helper()
	return run(t.Context(), rt, Options{
		Manifest: m,
		Context:  dir,
		Output:   filepath.Join(t.TempDir(), "out"),
		Platform: "linux/amd64",
	})
}

// Asserts that the log contains the given entries in order (other entries
// may be interleaved).
func assertOrdered(t *testing.T, log []string, wants ...string) {
	t.Helper()
	i := 0
	for _, want := range wants {
		found := false
		for ; i < len(log); i++ {
			if strings.Contains(log[i], want) {
				found = true
				i++
				break
			}
		}
		if !found {
			t.Fatalf("log missing %q after previous match\nlog:\n  %s", want, strings.Join(log, "\n  "))
		}
	}
}

func logContains(log []string, substr string) bool {
	for _, entry := range log {
		if strings.Contains(entry, substr) {
			return true
		}
	}
	return false
}

func TestRun(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()

	result, err := runPipeline(t, rt, dir, m)
	require.NoError(t, err)
	require.NotNil(t, result)

	assertOrdered(t, rt.log.snapshot(),
		"pull docker.io/library/node:22",
		"start client-yard",
		"exec[root] useradd --create-home slipway",
		"chown 1000:1000 /build",
		"exec[1000:1000] node --version",
		"copy-to /build",
		"exec[1000:1000] npm ci",
		"exec[1000:1000] npm run build -- --output-path /build/dist",
		"copy-to /build/dist",
		"pull docker.io/library/nginx:1.27",
		"start client-berth",
		"copy-contents-from /build/dist",
		"client-berth: copy-to /usr/share/nginx/html",
		"client-berth: copy-to /etc/nginx",
		"client-berth: stop",
		"client-berth: export",
		"destroy",
	)
}

func TestRunCompileTargetsArtifactDir(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()

	_, err := runPipeline(t, rt, dir, m)
	require.NoError(t, err)

	yard := rt.containers["client-yard"]
	require.NotNil(t, yard)

	var compile *runtime.ExecSpec
	for i := range yard.execs {
		if strings.HasPrefix(yard.execs[i].Command, "npm run build") {
			compile = &yard.execs[i]
		}
	}
	require.NotNil(t, compile, "compile command never executed")
	assert.Contains(t, compile.Command, "/build/dist")
	assert.NotContains(t, compile.Command, manifest.ArtifactToken)
}

func TestRunStageIsolation(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()

	_, err := runPipeline(t, rt, dir, m)
	require.NoError(t, err)

	// The berth receives exactly two transfers: the promoted artifact
	// contents and the serving configuration. No command from the build
	// stage ever runs in it.
	var berthCopies, berthExecs []string
	for _, entry := range rt.log.snapshot() {
		if !strings.HasPrefix(entry, "client-berth:") {
			continue
		}
		if strings.Contains(entry, "copy-to") {
			berthCopies = append(berthCopies, entry)
		}
		if strings.Contains(entry, "exec[") {
			berthExecs = append(berthExecs, entry)
		}
	}

	require.Len(t, berthCopies, 2)
	assert.Contains(t, berthCopies[0], "/usr/share/nginx/html")
	assert.Contains(t, berthCopies[1], "/etc/nginx")
	assert.Empty(t, berthExecs)
}

func TestRunUntrustedStepsNeverRunAsRoot(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()

	_, err := runPipeline(t, rt, dir, m)
	require.NoError(t, err)

	setup := map[string]bool{
		"useradd": true, "id -u": true, "id -g": true,
	}

	yard := rt.containers["client-yard"]
	require.NotNil(t, yard)
	for _, spec := range yard.execs {
		privileged := false
		for prefix := range setup {
			if strings.HasPrefix(spec.Command, prefix) {
				privileged = true
			}
		}
		if privileged {
			continue
		}
		assert.NotNil(t, spec.User, "command %q ran without the build identity", spec.Command)
	}
}

func TestRunMissingLockfile(t *testing.T) {
	dir, m := buildContext(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "package-lock.json")))

	rt := newFakeStarter()
	_, err := runPipeline(t, rt, dir, m)

	require.ErrorIs(t, err, ErrMissingInput)
	assert.Contains(t, err.Error(), "package-lock.json")

	// Fail-fast: no image pulled, no container started.
	assert.Empty(t, rt.log.snapshot())
}

func TestRunMissingReleaseFile(t *testing.T) {
	dir, m := buildContext(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "VERSION")))

	rt := newFakeStarter()
	_, err := runPipeline(t, rt, dir, m)

	require.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, rt.log.snapshot())
}

func TestRunCompileFailure(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()
	rt.yardFailCommand = "npm run build"

	_, err := runPipeline(t, rt, dir, m)
	require.ErrorIs(t, err, ErrPipeline)
	require.ErrorIs(t, err, ErrCommandFailed)

	// No promotion: the berth is never started and nothing is exported.
	assert.False(t, logContains(rt.log.snapshot(), "start client-berth"))
	assert.False(t, logContains(rt.log.snapshot(), "copy-contents-from"))
	assert.False(t, logContains(rt.log.snapshot(), "export"))

	// The yard is still cleaned up.
	assert.True(t, logContains(rt.log.snapshot(), "client-yard: destroy"))
}

func TestRunInstallFailure(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()
	rt.yardFailCommand = "npm ci"

	_, err := runPipeline(t, rt, dir, m)
	require.ErrorIs(t, err, ErrCommandFailed)

	// Install failed, so the compile command never ran.
	assert.False(t, logContains(rt.log.snapshot(), "npm run build"))
	assert.False(t, logContains(rt.log.snapshot(), "export"))
}

func TestRunToolchainOutOfRange(t *testing.T) {
	dir, m := buildContext(t)
	rt := newFakeStarter()
	rt.toolVersion = "v18.19.0\n"

	_, err := runPipeline(t, rt, dir, m)
	require.ErrorIs(t, err, ErrToolchain)

	// Sources never reach the container, install never runs.
	assert.False(t, logContains(rt.log.snapshot(), "copy-to /build"))
	assert.False(t, logContains(rt.log.snapshot(), "npm ci"))
}
