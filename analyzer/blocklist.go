package analyzer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Blocklist holds the names guest code may not import, call, or reach.
type Blocklist struct {
	// Modules are top-level module names. "os" also blocks "os.path".
	Modules []string `yaml:"modules"`
	// Builtins are function names blocked when called by bare name or
	// referenced as a value.
	Builtins []string `yaml:"builtins"`
	// Attributes are attribute names blocked wherever they are accessed,
	// in addition to dunder attributes outside the allowed set.
	Attributes []string `yaml:"attributes"`
	// Names are identifiers blocked wherever they are referenced.
	Names []string `yaml:"names"`
}

// DefaultBlocklist covers process and OS access, shell utilities, dynamic
// import machinery, networking, and filesystem path helpers. The
// introspection entries keep guest code away from interpreter frames, where
// the session loop holds its streams.
var DefaultBlocklist = Blocklist{
	Modules: []string{
		"os",
		"subprocess",
		"shutil",
		"importlib",
		"socket",
		"http",
		"urllib",
		"requests",
		"ftplib",
		"pathlib",
		"glob",
		"sys",
		"io",
		"builtins",
		"gc",
		"inspect",
		"traceback",
		"types",
		"ctypes",
		"pickle",
		"marshal",
		"operator",
		"code",
		"codeop",
		"runpy",
		"pdb",
		"threading",
		"multiprocessing",
	},
	Builtins: []string{
		"exec",
		"eval",
		"compile",
		"input",
		"open",
		"__import__",
		"getattr",
		"setattr",
		"delattr",
		"vars",
		"globals",
		"locals",
		"breakpoint",
	},
	Attributes: []string{
		"f_back",
		"f_builtins",
		"f_code",
		"f_globals",
		"f_locals",
		"tb_frame",
		"tb_next",
		"gi_frame",
		"gi_code",
		"cr_frame",
		"cr_code",
		"ag_frame",
		"ag_code",
		"_getframe",
		"get_field",
	},
	Names: []string{
		"__builtins__",
		"__loader__",
		"__spec__",
	},
}

// LoadBlocklist reads a YAML policy file. A list left out of the file
// falls back to the corresponding DefaultBlocklist entry.
func LoadBlocklist(path string) (Blocklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blocklist{}, fmt.Errorf("read blocklist: %w", err)
	}

	var bl Blocklist
	if err := yaml.Unmarshal(data, &bl); err != nil {
		return Blocklist{}, fmt.Errorf("parse blocklist %s: %w", path, err)
	}

	if len(bl.Modules) == 0 {
		bl.Modules = DefaultBlocklist.Modules
	}
	if len(bl.Builtins) == 0 {
		bl.Builtins = DefaultBlocklist.Builtins
	}
	if len(bl.Attributes) == 0 {
		bl.Attributes = DefaultBlocklist.Attributes
	}
	if len(bl.Names) == 0 {
		bl.Names = DefaultBlocklist.Names
	}
	return bl, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
