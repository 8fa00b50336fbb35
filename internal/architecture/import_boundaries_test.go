package architecture_test

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportBoundaries(t *testing.T) {
	files, err := collectGoFiles(internalRootDir())
	require.NoError(t, err)
	require.NotEmpty(t, files)

	violations := make([]string, 0)
	for _, file := range files {
		if isTestFile(file) {
			continue
		}
		sourcePkg := packageImportPath(file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		for _, importPath := range parseImports(t, file) {
			if !strings.HasPrefix(importPath, modulePath+"/") || hasPathPrefix(importPath, rule.sourcePrefix) {
				continue
			}
			if prefix := matchingForbiddenPrefix(importPath, rule.forbidden); prefix != "" {
				violations = append(violations,
					"governance: "+sourcePkg+" imports "+importPath+" via "+relToRepoRoot(file)+"; allowed direction: "+rule.hint,
				)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

// Internal packages, tests included, never reach up into the binaries.
func TestInternalDoesNotImportCommands(t *testing.T) {
	files, err := collectGoFiles(internalRootDir())
	require.NoError(t, err)

	for _, file := range files {
		for _, importPath := range parseImports(t, file) {
			assert.Falsef(t, hasPathPrefix(importPath, modulePath+"/cmd") || hasPathPrefix(importPath, modulePath+"/pkg"),
				"%s imports %s", relToRepoRoot(file), importPath)
		}
	}
}

// The test fixtures package is for tests only.
func TestTestutilOnlyImportedByTests(t *testing.T) {
	var files []string
	for _, dir := range []string{"cmd", "internal", "pkg"} {
		found, err := collectGoFiles(filepath.Join(repoRootDir(), dir))
		require.NoError(t, err)
		files = append(files, found...)
	}

	for _, file := range files {
		if isTestFile(file) || strings.Contains(file, "/internal/testutil/") {
			continue
		}
		for _, importPath := range parseImports(t, file) {
			assert.Falsef(t, hasPathPrefix(importPath, modulePath+"/internal/testutil"),
				"%s imports testutil outside a test", relToRepoRoot(file))
		}
	}
}

func TestFindRule(t *testing.T) {
	tests := []struct {
		pkg    string
		want   string
		exists bool
	}{
		{modulePath + "/internal/domain", modulePath + "/internal/domain", true},
		{modulePath + "/internal/db/repository", modulePath + "/internal/db", true},
		{modulePath + "/internal/service/refresh", modulePath + "/internal/service", true},
		{modulePath + "/internal/dbx", "", false},
		{modulePath + "/internal/testutil", "", false},
	}
	for _, tt := range tests {
		rule, ok := findRule(tt.pkg)
		assert.Equal(t, tt.exists, ok, tt.pkg)
		assert.Equal(t, tt.want, rule.sourcePrefix, tt.pkg)
	}
}
