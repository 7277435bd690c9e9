// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package querypath

import (
	"os"
	"path/filepath"
	"sort"

	apperrors "sqltunnel/cli/internal/errors"

	"github.com/spf13/afero"
)

// Pattern matches query file names. Matching is case-sensitive.
const Pattern = "*.sql"

// QueryFile pairs a query file with the CSV its results go to.
type QueryFile struct {
	Source string
	Output string
}

// Map maps query file paths to output paths.
type Map map[string]string

// Files returns the entries sorted by source path.
func (m Map) Files() []QueryFile {
	files := make([]QueryFile, 0, len(m))
	for src, out := range m {
		files = append(files, QueryFile{Source: src, Output: out})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Source < files[j].Source })
	return files
}

// Collisions returns output paths claimed by more than one query file,
// mapped to the sources claiming them. Running such a map overwrites
// earlier results with later ones.
func (m Map) Collisions() map[string][]string {
	bySink := make(map[string][]string, len(m))
	for _, f := range m.Files() {
		bySink[f.Output] = append(bySink[f.Output], f.Source)
	}
	out := make(map[string][]string)
	for sink, sources := range bySink {
		if len(sources) > 1 {
			out[sink] = sources
		}
	}
	return out
}

// CheckDir returns an InvalidInput error unless path is an existing directory.
func CheckDir(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.Newf(apperrors.InvalidInput, "query directory %s does not exist", path)
		}
		return apperrors.Wrapf(apperrors.InvalidInput, err, "stat query directory %s", path)
	}
	if !info.IsDir() {
		return apperrors.Newf(apperrors.InvalidInput, "query path %s is not a directory", path)
	}
	return nil
}

// Resolve walks root and maps every query file beneath it to an output path.
// A file at root/sub/x.sql maps to <parent of root>/sub/<name>, so the result
// tree mirrors the query tree one level above it. Directories are not created.
func Resolve(fs afero.Fs, root string, names *NameGenerator) (Map, error) {
	if names == nil {
		names = NewNameGenerator(nil)
	}
	root = filepath.Clean(root)
	if err := CheckDir(fs, root); err != nil {
		return nil, err
	}
	outRoot := filepath.Join(root, "..")

	// Walk lstats its root, so a symlinked query directory would look like a
	// file. Walk the link's target and report paths under the given root.
	walkRoot := root
	if _, ok := fs.(*afero.OsFs); ok {
		target, err := filepath.EvalSymlinks(root)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.InvalidInput, err, "resolve query directory %s", root)
		}
		walkRoot = target
	}

	m := make(Map)
	err := afero.Walk(fs, walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return apperrors.Wrapf(apperrors.InvalidInput, err, "walk %s", path)
		}
		if info.IsDir() {
			return nil
		}
		ok, err := filepath.Match(Pattern, info.Name())
		if err != nil || !ok {
			return err
		}
		rel, err := filepath.Rel(walkRoot, filepath.Dir(path))
		if err != nil {
			return apperrors.Wrapf(apperrors.InvalidInput, err, "relative path of %s", path)
		}
		source := filepath.Join(root, rel, info.Name())
		m[source] = filepath.Join(outRoot, rel, names.Name(info.Name()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
