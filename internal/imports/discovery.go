package imports

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/wordscan/internal/utils"
)

// DiscoverOptions selects the files Discover returns from directories.
type DiscoverOptions struct {
	Recursive bool
	// Include and Exclude are filepath.Match patterns applied to base names.
	// Without Include patterns every supported image and PDF is included.
	Include []string
	Exclude []string
}

// Discover expands args into the files to import. Directories are searched
// for supported files; files named explicitly must exist and be supported.
func Discover(args []string, opts DiscoverOptions) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("file not found: %s", arg)
		}
		if info.IsDir() {
			found, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		if !supported(arg) {
			return nil, fmt.Errorf("%s: %w", arg, utils.ErrUnsupportedFormat)
		}
		if opts.include(arg) {
			files = append(files, arg)
		}
	}
	return files, nil
}

func discoverInDirectory(dir string, opts DiscoverOptions) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if supported(path) && opts.include(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan directory %s: %w", dir, err)
	}
	return files, nil
}

func supported(path string) bool {
	return utils.IsSupportedImage(path) || utils.IsPDF(path)
}

// include applies the exclude patterns first, then the include patterns.
func (o DiscoverOptions) include(path string) bool {
	if matchesAny(path, o.Exclude) {
		return false
	}
	return len(o.Include) == 0 || matchesAny(path, o.Include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
