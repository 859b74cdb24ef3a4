// Package discover finds NuGet package references in .NET solution and
// project trees. It handles .sln solutions, SDK-style project files
// (PackageReference) and legacy packages.config files, and returns a
// deduplicated, sorted list of references ready for license resolution.
package discover

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// PackageRef is one discovered package reference.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the Name/Version identifier form consumed by the resolver.
func (r PackageRef) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "/" + r.Version
}

var projectExtensions = map[string]bool{
	".csproj": true,
	".fsproj": true,
	".vbproj": true,
}

// Directories that never contain project sources worth scanning.
var skippedDirs = map[string]bool{
	"bin": true, "obj": true, ".git": true, "node_modules": true,
}

// Scan discovers package references under path, which may be a solution
// file, a project file, a packages.config, or a directory to walk.
func Scan(path string) ([]PackageRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var refs []PackageRef
	switch {
	case info.IsDir():
		refs, err = scanDir(path)
	case strings.EqualFold(filepath.Ext(path), ".sln"):
		refs, err = scanSolution(path)
	case projectExtensions[strings.ToLower(filepath.Ext(path))]:
		refs, err = parseProject(path)
	case strings.EqualFold(filepath.Base(path), "packages.config"):
		refs, err = parsePackagesConfig(path)
	default:
		return nil, fmt.Errorf("unsupported input file: %s", path)
	}
	if err != nil {
		return nil, err
	}
	return dedupeSorted(refs), nil
}

func scanDir(dir string) ([]PackageRef, error) {
	var refs []PackageRef
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		var found []PackageRef
		switch {
		case projectExtensions[strings.ToLower(filepath.Ext(path))]:
			found, err = parseProject(path)
		case strings.EqualFold(d.Name(), "packages.config"):
			found, err = parsePackagesConfig(path)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		refs = append(refs, found...)
		return nil
	})
	return refs, err
}

// solutionProjectRE matches the project path in a solution's Project("{...}")
// lines.
var solutionProjectRE = regexp.MustCompile(`(?m)^Project\("\{[^}]+\}"\)\s*=\s*"[^"]*",\s*"([^"]+)"`)

func scanSolution(slnPath string) ([]PackageRef, error) {
	data, err := os.ReadFile(slnPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(slnPath)
	var refs []PackageRef
	for _, m := range solutionProjectRE.FindAllStringSubmatch(string(data), -1) {
		// Solution files always use Windows path separators.
		rel := filepath.FromSlash(strings.ReplaceAll(m[1], `\`, "/"))
		if !projectExtensions[strings.ToLower(filepath.Ext(rel))] {
			continue
		}
		projectPath := filepath.Join(dir, rel)
		found, err := parseProject(projectPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		refs = append(refs, found...)
	}
	return refs, nil
}

type projectFile struct {
	ItemGroups []struct {
		PackageReferences []struct {
			Include     string `xml:"Include,attr"`
			VersionAttr string `xml:"Version,attr"`
			VersionElem string `xml:"Version"`
		} `xml:"PackageReference"`
	} `xml:"ItemGroup"`
}

func parseProject(path string) ([]PackageRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proj projectFile
	if err := xml.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("parsing project %s: %w", path, err)
	}

	var refs []PackageRef
	for _, group := range proj.ItemGroups {
		for _, pr := range group.PackageReferences {
			if pr.Include == "" {
				continue
			}
			version := pr.VersionAttr
			if version == "" {
				version = strings.TrimSpace(pr.VersionElem)
			}
			refs = append(refs, PackageRef{Name: pr.Include, Version: version})
		}
	}
	return refs, nil
}

type packagesConfig struct {
	Packages []struct {
		ID      string `xml:"id,attr"`
		Version string `xml:"version,attr"`
	} `xml:"package"`
}

func parsePackagesConfig(path string) ([]PackageRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg packagesConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var refs []PackageRef
	for _, p := range cfg.Packages {
		if p.ID == "" {
			continue
		}
		refs = append(refs, PackageRef{Name: p.ID, Version: p.Version})
	}
	return refs, nil
}

func dedupeSorted(refs []PackageRef) []PackageRef {
	seen := make(map[string]struct{}, len(refs))
	var out []PackageRef
	for _, r := range refs {
		key := r.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
