// Package tiles discovers candidate elevation rasters and filters them by
// spatial extent.
package tiles

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// rasterExtensions are the file types recognized as elevation tiles.
var rasterExtensions = []string{".tif", ".vrt"}

// vectorExtensions are the file types recognized as stream-network datasets.
var vectorExtensions = []string{".shp", ".gpkg", ".parquet", ".geoparquet"}

// Discover enumerates elevation rasters under root. A directory is walked
// recursively; a single file is the only tile; a missing root is a
// configuration error. Tiles are deduplicated by resolved absolute path.
func Discover(root string) ([]string, error) {
	return discover(root, rasterExtensions)
}

// DiscoverVectors enumerates stream-network files under root, non-recursively
// matching the recognized vector formats.
func DiscoverVectors(root string) ([]string, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, pipeerrors.ConfigurationError("stream network folder does not exist").
			WithContext("path", root)
	}
	if !st.IsDir() {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), vectorExtensions) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	sort.Strings(out)
	return out, nil
}

func discover(root string, extensions []string) ([]string, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, pipeerrors.ConfigurationError("input root does not exist").
			WithContext("path", root)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, ok := seen[abs]; ok {
			return nil
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		return nil
	}

	if !st.IsDir() {
		if err := add(root); err != nil {
			return nil, err
		}
		return out, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(d.Name(), extensions) {
			return nil
		}
		return add(path)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// FilterByExtent keeps only tiles whose extent overlaps the query extent.
// Tiles the engine cannot open are dropped with a warning.
func FilterByExtent(ctx context.Context, engine geo.Engine, paths []string, extent geo.Extent) []string {
	var out []string
	for _, p := range paths {
		info, err := engine.OpenRaster(ctx, p)
		if err != nil {
			slog.Warn("Could not open tile, skipping", "path", p, "error", err)
			continue
		}
		if info.Extent.Overlaps(extent) {
			out = append(out, p)
		}
	}
	return out
}

func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
