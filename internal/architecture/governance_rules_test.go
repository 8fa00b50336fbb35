package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "mdl-rewrite"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

func internalPkgs(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = modulePath + "/internal/" + n
	}
	return out
}

// Rules are matched by the first source prefix, so nested packages come
// before their parents.
var architectureRules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden:    []string{modulePath + "/internal"},
		hint:         "domain imports no other package of the module",
	},
	{
		sourcePrefix: modulePath + "/internal/duckdbsql",
		forbidden:    []string{modulePath + "/internal"},
		hint:         "duckdbsql is a leaf over the SQL parser",
	},
	{
		sourcePrefix: modulePath + "/internal/config",
		forbidden:    []string{modulePath + "/internal"},
		hint:         "config is read by every layer and imports none",
	},
	{
		sourcePrefix: modulePath + "/internal/macro",
		forbidden:    internalPkgs("manifest", "semantic", "service", "api", "ui", "db", "compute", "middleware", "config"),
		hint:         "macro depends on domain and duckdbsql",
	},
	{
		sourcePrefix: modulePath + "/internal/manifest",
		forbidden:    internalPkgs("semantic", "service", "api", "ui", "db", "compute", "middleware"),
		hint:         "manifest depends on domain, macro, duckdbsql and config",
	},
	{
		sourcePrefix: modulePath + "/internal/semantic",
		forbidden:    internalPkgs("service", "api", "ui", "db", "compute", "middleware", "config"),
		hint:         "semantic rewrites SQL without touching storage or transport",
	},
	{
		sourcePrefix: modulePath + "/internal/compute",
		forbidden:    internalPkgs("semantic", "manifest", "macro", "service", "api", "ui", "db", "middleware"),
		hint:         "compute executes SQL and knows nothing about models",
	},
	{
		sourcePrefix: modulePath + "/internal/service",
		forbidden:    internalPkgs("api", "ui", "db", "middleware"),
		hint:         "services depend on domain ports, not adapters",
	},
	{
		sourcePrefix: modulePath + "/internal/db",
		forbidden:    internalPkgs("api", "ui", "service", "semantic", "manifest", "middleware", "compute"),
		hint:         "db implements domain repositories only",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden:    internalPkgs("api", "ui", "service", "db", "semantic"),
		hint:         "middleware depends on config and domain",
	},
	{
		sourcePrefix: modulePath + "/internal/ui",
		forbidden:    internalPkgs("api", "service", "db", "compute"),
		hint:         "ui renders the catalog and is mounted by api",
	},
	{
		sourcePrefix: modulePath + "/internal/api",
		forbidden:    internalPkgs("db"),
		hint:         "api reaches storage through services",
	},
}

func collectGoFiles(root string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func repoRootDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func internalRootDir() string {
	return filepath.Join(repoRootDir(), "internal")
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range architectureRules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func matchingForbiddenPrefix(importPath string, forbidden []string) string {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return prefix
		}
	}
	return ""
}

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}

func packageImportPath(file string) string {
	path := filepath.ToSlash(file)
	dir := filepath.ToSlash(filepath.Dir(path))
	if idx := strings.Index(dir, "/internal/"); idx >= 0 {
		return modulePath + dir[idx:]
	}
	return modulePath + "/" + dir
}

func isTestFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "_test.go")
}

func parseImports(t *testing.T, file string) []string {
	t.Helper()

	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
	require.NoErrorf(t, err, "parse imports for %s", file)

	imports := make([]string, 0, len(parsed.Imports))
	for _, imp := range parsed.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, "\""))
	}
	return imports
}

func relToRepoRoot(path string) string {
	rel, err := filepath.Rel(repoRootDir(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
