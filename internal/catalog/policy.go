// Package catalog scans a project tree and produces the current set of
// indexable files with modification timestamps.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/driftworks/semdex/internal/config"
)

// Dotfiles are skipped except for this set, mirroring the original tree view.
var dotfileAllow = map[string]struct{}{
	".env":       {},
	".gitignore": {},
}

// Policy decides which directories and files a scan includes. Name/glob lists
// and the regular expression are mutually exclusive modes; NewPolicy rejects a
// config that sets both.
type Policy struct {
	ignoreDirs  map[string]struct{}
	ignoreFiles map[string]struct{}
	globs       []string
	pattern     *regexp.Regexp
	matcher     gitignore.Matcher
	binaryExts  map[string]struct{}
}

// NewPolicy builds a Policy from the exclusion config and the binary-extension
// allow-list. binaryExts name file types that are cataloged despite failing
// the text sniff (raster images and similar).
func NewPolicy(cfg config.ExcludeConfig, binaryExts []string) (*Policy, error) {
	if cfg.Pattern != "" && len(cfg.Globs) > 0 {
		return nil, fmt.Errorf("exclusion globs and pattern are mutually exclusive")
	}
	p := &Policy{
		ignoreDirs:  make(map[string]struct{}, len(cfg.Dirs)),
		ignoreFiles: make(map[string]struct{}, len(cfg.Files)),
		globs:       append([]string(nil), cfg.Globs...),
		binaryExts:  make(map[string]struct{}, len(binaryExts)),
	}
	for _, d := range cfg.Dirs {
		p.ignoreDirs[d] = struct{}{}
	}
	for _, f := range cfg.Files {
		p.ignoreFiles[f] = struct{}{}
	}
	for _, e := range binaryExts {
		p.binaryExts[strings.ToLower(e)] = struct{}{}
	}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

// LoadGitignore reads the project's .gitignore and adds its patterns to the
// policy. A missing or unreadable file leaves the policy unchanged.
func (p *Policy) LoadGitignore(root string) {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if len(patterns) > 0 {
		p.matcher = gitignore.NewMatcher(patterns)
	}
}

// ExcludesDir reports whether the directory should be pruned before descent.
// relPath is slash-separated and relative to the scan root.
func (p *Policy) ExcludesDir(relPath, name string) bool {
	if _, ok := p.ignoreDirs[name]; ok {
		return true
	}
	if dotfileExcluded(name) {
		return true
	}
	return p.matchesRules(relPath, name, true)
}

// ExcludesFile reports whether the file is excluded by name rules. The
// content sniff is separate (see Scan).
func (p *Policy) ExcludesFile(relPath, name string) bool {
	if _, ok := p.ignoreFiles[name]; ok {
		return true
	}
	if dotfileExcluded(name) {
		return true
	}
	return p.matchesRules(relPath, name, false)
}

// BinaryAllowed reports whether ext (with leading dot, any case) is on the
// allow-list of binary types that are cataloged without a text sniff.
func (p *Policy) BinaryAllowed(ext string) bool {
	_, ok := p.binaryExts[strings.ToLower(ext)]
	return ok
}

func (p *Policy) matchesRules(relPath, name string, isDir bool) bool {
	if p.pattern != nil && p.pattern.MatchString(relPath) {
		return true
	}
	for _, g := range p.globs {
		if ok, err := path.Match(g, name); err == nil && ok {
			return true
		}
	}
	if p.matcher != nil && p.matcher.Match(strings.Split(relPath, "/"), isDir) {
		return true
	}
	return false
}

func dotfileExcluded(name string) bool {
	if !strings.HasPrefix(name, ".") {
		return false
	}
	_, allowed := dotfileAllow[name]
	return !allowed
}
