// Package config loads the server's runtime configuration: isolation tool
// location, box pool sizing, authentication, and the language descriptor
// table.
package config

import (
	"fmt"
	"os"

	"github.com/akshayaggarwal99/judge/internal/lang"
	"gopkg.in/yaml.v3"
)

// Server holds everything serve needs to stand up the API.
type Server struct {
	Port        string `yaml:"port"`
	ToolPath    string `yaml:"tool_path"`
	NumBoxes    int    `yaml:"num_boxes"`
	CGroups     bool   `yaml:"cgroups"`
	APIKey      string `yaml:"api_key"`
	LanguageDir string `yaml:"language_dir"`
}

// DefaultServer returns the conservative defaults used when a field is
// absent from both flags and the config file.
func DefaultServer() Server {
	return Server{
		Port:        "8080",
		ToolPath:    "isolate",
		NumBoxes:    64,
		LanguageDir: "configs/languages.yaml",
	}
}

// LoadServer reads a YAML server config from path, falling back to
// DefaultServer for any zero-valued field path leaves unset.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	loaded := DefaultServer()
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return loaded, nil
}

// languageFile mirrors the top level of a languages.yaml document: a
// "languages" list with one entry of descriptor fields per language.
type languageFile struct {
	Languages []descriptorYAML `yaml:"languages"`
}

type programYAML struct {
	Path         string   `yaml:"path"`
	Opts         []string `yaml:"opts,omitempty"`
	Env          []string `yaml:"env,omitempty"`
	VersionOpt   string   `yaml:"version_opt,omitempty"`
	VersionLines int      `yaml:"version_lines,omitempty"`
}

func (p *programYAML) toProgram() *lang.Program {
	if p == nil {
		return nil
	}
	return &lang.Program{
		Path: p.Path, Opts: p.Opts, Env: p.Env,
		VersionOpt: p.VersionOpt, VersionLines: p.VersionLines,
	}
}

type descriptorYAML struct {
	Name            string        `yaml:"name"`
	SourceExt       string        `yaml:"source_ext"`
	Compiler        *programYAML  `yaml:"compiler,omitempty"`
	Interpreter     *programYAML  `yaml:"interpreter,omitempty"`
	Extra           []programYAML `yaml:"extra,omitempty"`
	AllowedDirs     []string      `yaml:"allowed_dirs,omitempty"`
	ReferenceSource string        `yaml:"reference_source,omitempty"`
	CompileOptOut   []string      `yaml:"compile_opt_out,omitempty"`
}

// LoadLanguages parses a languages.yaml document into language descriptors,
// the way camisole's languages/*.py modules each declare one Lang
// subclass, except collapsed into one data file plus the generic
// lang.Descriptor shape.
func LoadLanguages(path string) ([]*lang.Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var doc languageFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	descs := make([]*lang.Descriptor, 0, len(doc.Languages))
	for _, d := range doc.Languages {
		extra := make([]*lang.Program, 0, len(d.Extra))
		for i := range d.Extra {
			extra = append(extra, d.Extra[i].toProgram())
		}
		descs = append(descs, &lang.Descriptor{
			Name:            d.Name,
			SourceExt:       d.SourceExt,
			Compiler:        d.Compiler.toProgram(),
			Interpreter:     d.Interpreter.toProgram(),
			Extra:           extra,
			AllowedDirs:     d.AllowedDirs,
			ReferenceSource: d.ReferenceSource,
			CompileOptOut:   d.CompileOptOut,
		})
	}
	return descs, nil
}
