package manifest

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/blang/semver/v4"
	"sigs.k8s.io/yaml"
)

const (

	// Default file name of the pipeline manifest within a build context.
	DefaultFileName = "slipway.yaml"

	// Token in the compile command that is replaced with the artifact
	// directory path.
	ArtifactToken = "{{artifact}}"
)

// Defaults applied by Validate when the corresponding fields are empty.
const (
	defaultUser    = "slipway"
	defaultWorkdir = "/build"
	defaultStamp   = "version.txt"
)

// Describes a complete two-stage build pipeline.
type Manifest struct {
	App     string  `json:"app"`               // Application name, used as a prefix for container IDs.
	Context string  `json:"context,omitempty"` // Build context directory, relative to the manifest. Defaults to ".".
	Yard    Yard    `json:"yard"`              // Build stage definition.
	Release Release `json:"release"`           // Release stamp definition.
	Berth   Berth   `json:"berth"`             // Runtime stage definition.
}

// Describes the build stage: the toolchain image and the commands that
// turn sources into a static artifact directory.
type Yard struct {
	Image           string    `json:"image"`             // Toolchain image reference (e.g. docker.io/library/node:22).
	User            string    `json:"user,omitempty"`    // Unprivileged build user. Defaults to "slipway".
	Workdir         string    `json:"workdir,omitempty"` // Absolute working directory inside the container. Defaults to "/build".
	Toolchain       Toolchain `json:"toolchain"`         // Toolchain version requirement.
	PackageManifest string    `json:"packageManifest"`   // Dependency manifest file, relative to the context (e.g. package.json).
	Lockfile        string    `json:"lockfile"`          // Dependency lock file, relative to the context (e.g. package-lock.json).
	Sources         []string  `json:"sources"`           // Source files and directories, relative to the context.
	Configs         []string  `json:"configs,omitempty"` // Auxiliary build-config files, relative to the context.
	Install         string    `json:"install"`           // Dependency install command (e.g. "npm ci").
	Compile         string    `json:"compile"`           // Compile command; must contain the {{artifact}} token.
	ArtifactDir     string    `json:"artifactDir"`       // Absolute path of the artifact output directory inside the container.
}

// Declares the toolchain version requirement for the build stage.
type Toolchain struct {
	Command string `json:"command"` // Command that prints the toolchain version (e.g. "node --version").
	Range   string `json:"range"`   // Accepted semver range (e.g. ">=20.0.0 <23.0.0").
}

// Describes the release stamp written into the artifact directory after
// compilation.
type Release struct {
	File  string `json:"file"`            // Release identifier file on the host, relative to the context.
	Stamp string `json:"stamp,omitempty"` // File name of the stamp inside the artifact directory. Defaults to "version.txt".
}

// Describes the runtime stage: the server image and where the artifact
// and serving configuration are placed inside it.
type Berth struct {
	Image        string `json:"image"`        // Server image reference (e.g. docker.io/library/nginx:1.27).
	Config       string `json:"config"`       // Serving configuration file on the host, relative to the context.
	ConfigPath   string `json:"configPath"`   // Absolute destination of the serving configuration inside the image.
	DocumentRoot string `json:"documentRoot"` // Absolute document root that receives the artifact directory contents.
}

// Reads and validates a pipeline manifest from a YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestRead, err)
	}

	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestParse, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Checks the manifest for completeness and applies defaults.
//
// All container-side paths must be absolute; the release stamp must be
// a bare file name so it cannot escape the artifact directory.
func (m *Manifest) Validate() error {
	if m.App == "" {
		return invalid("app is required")
	}
	if m.Context == "" {
		m.Context = "."
	}

	if err := m.Yard.validate(); err != nil {
		return err
	}
	if err := m.Release.validate(); err != nil {
		return err
	}
	return m.Berth.validate()
}

func (y *Yard) validate() error {
	if y.Image == "" {
		return invalid("yard.image is required")
	}
	if y.User == "" {
		y.User = defaultUser
	}
	if y.Workdir == "" {
		y.Workdir = defaultWorkdir
	}
	if !path.IsAbs(y.Workdir) {
		return invalid("yard.workdir must be absolute")
	}

	if y.Toolchain.Command == "" {
		return invalid("yard.toolchain.command is required")
	}
	if _, err := y.Toolchain.ParseRange(); err != nil {
		return fmt.Errorf("%w: yard.toolchain.range: %w", ErrManifestInvalid, err)
	}

	if y.PackageManifest == "" {
		return invalid("yard.packageManifest is required")
	}
	if y.Lockfile == "" {
		return invalid("yard.lockfile is required")
	}
	if len(y.Sources) == 0 {
		return invalid("yard.sources must name at least one entry")
	}

	if y.Install == "" {
		return invalid("yard.install is required")
	}
	if y.Compile == "" {
		return invalid("yard.compile is required")
	}
	if !strings.Contains(y.Compile, ArtifactToken) {
		return invalid("yard.compile must contain the " + ArtifactToken + " token")
	}

	if y.ArtifactDir == "" {
		return invalid("yard.artifactDir is required")
	}
	if !path.IsAbs(y.ArtifactDir) {
		return invalid("yard.artifactDir must be absolute")
	}

	return nil
}

func (r *Release) validate() error {
	if r.File == "" {
		return invalid("release.file is required")
	}
	if r.Stamp == "" {
		r.Stamp = defaultStamp
	}
	if r.Stamp != path.Base(r.Stamp) || r.Stamp == "." || r.Stamp == ".." {
		return invalid("release.stamp must be a bare file name")
	}
	return nil
}

func (b *Berth) validate() error {
	if b.Image == "" {
		return invalid("berth.image is required")
	}
	if b.Config == "" {
		return invalid("berth.config is required")
	}
	if b.ConfigPath == "" || !path.IsAbs(b.ConfigPath) {
		return invalid("berth.configPath must be an absolute path")
	}
	if b.DocumentRoot == "" || !path.IsAbs(b.DocumentRoot) {
		return invalid("berth.documentRoot must be an absolute path")
	}
	return nil
}

// Parses the accepted toolchain version range.
func (t Toolchain) ParseRange() (semver.Range, error) {
	return semver.ParseRange(t.Range)
}

// Returns the compile command with the artifact token replaced by the
// artifact directory path.
func (y Yard) CompileCommand() string {
	return strings.ReplaceAll(y.Compile, ArtifactToken, y.ArtifactDir)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrManifestInvalid, msg)
}
