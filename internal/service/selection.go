package service

import (
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Priority classes for harvested files, highest first.
const (
	priorityHighValue = 3
	prioritySource    = 2
	priorityOther     = 1
)

// candidateFile exists only within a single harvest run; accepted candidates
// are persisted to the blob store and the rest are discarded.
type candidateFile struct {
	path      string
	name      string
	priority  int
	content   []byte
	sizeBytes int64
}

// excludedDirs are skipped without recursing into them, which also caps
// traversal cost on monorepos with huge vendored subtrees.
var excludedDirs = map[string]struct{}{
	".git":         {},
	".github":      {},
	".idea":        {},
	".vscode":      {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"out":          {},
	"target":       {},
	"bin":          {},
	"obj":          {},
	"coverage":     {},
	"__pycache__":  {},
	".next":        {},
	".venv":        {},
	"venv":         {},
}

// excludedPatterns drop generated, minified and lock files by name.
var excludedPatterns = []string{
	"*.min.js",
	"*.min.css",
	"*.map",
	"*.lock",
	"*.snap",
	"*.sum",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.ico",
	"*.svg",
	"*.pdf",
	"*.zip",
	"*.woff",
	"*.woff2",
	"*.ttf",
}

// highValueNames mark files graded readers look at first, regardless of
// extension: project docs and ecosystem manifests.
var highValueNames = map[string]struct{}{
	"readme":             {},
	"readme.md":          {},
	"readme.txt":         {},
	"license":            {},
	"license.md":         {},
	"contributing.md":    {},
	"package.json":       {},
	"go.mod":             {},
	"cargo.toml":         {},
	"pyproject.toml":     {},
	"requirements.txt":   {},
	"gemfile":            {},
	"composer.json":      {},
	"pom.xml":            {},
	"build.gradle":       {},
	"makefile":           {},
	"dockerfile":         {},
	"docker-compose.yml": {},
	"tsconfig.json":      {},
}

var sourceExtensions = map[string]struct{}{
	".go": {}, ".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {}, ".mjs": {},
	".py": {}, ".rb": {}, ".rs": {}, ".java": {}, ".kt": {}, ".swift": {},
	".c": {}, ".h": {}, ".cpp": {}, ".hpp": {}, ".cs": {}, ".php": {},
	".sql": {}, ".sh": {}, ".md": {}, ".txt": {}, ".html": {}, ".css": {},
	".scss": {}, ".vue": {}, ".svelte": {}, ".yml": {}, ".yaml": {},
	".toml": {}, ".json": {}, ".proto": {}, ".graphql": {},
}

// isExcluded reports whether a tree entry should be skipped entirely.
// Directories are matched by bare name, files by name against the glob
// patterns.
func isExcluded(name string, isDir bool) bool {
	lower := strings.ToLower(name)
	if isDir {
		_, found := excludedDirs[lower]
		return found
	}

	for _, pattern := range excludedPatterns {
		if matched, _ := path.Match(pattern, lower); matched {
			return true
		}
	}
	return false
}

// priorityFor classifies a file by its bare name, highest class first.
func priorityFor(name string) int {
	lower := strings.ToLower(name)
	if _, found := highValueNames[lower]; found {
		return priorityHighValue
	}
	if _, found := sourceExtensions[strings.ToLower(path.Ext(lower))]; found {
		return prioritySource
	}
	return priorityOther
}

// sortByPriority orders candidates by priority class descending; ties keep
// discovery order so runs over the same tree are deterministic.
func sortByPriority(candidates []candidateFile) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})
}

// acceptUnderBudget makes a single forward pass over the sorted candidates,
// keeping each file whose inclusion stays at or under maxTotalBytes. A file
// that does not fit is permanently skipped even if a later, smaller file
// would have fit better; this is not a knapsack optimisation.
func acceptUnderBudget(candidates []candidateFile, maxTotalBytes int64) ([]candidateFile, int64) {
	accepted := make([]candidateFile, 0, len(candidates))
	var total int64

	for _, candidate := range candidates {
		if total+candidate.sizeBytes > maxTotalBytes {
			continue
		}
		accepted = append(accepted, candidate)
		total += candidate.sizeBytes
	}

	return accepted, total
}

// isTextContent reports whether downloaded bytes are plain text the grader
// can consume. Every text-based type detected by mimetype descends from
// text/plain.
func isTextContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if !utf8.Valid(content) {
		return false
	}

	for mtype := mimetype.Detect(content); mtype != nil; mtype = mtype.Parent() {
		if mtype.Is("text/plain") {
			return true
		}
	}
	return false
}
