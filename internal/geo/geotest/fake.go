// Package geotest provides an in-memory geo.Engine for stage and scheduler
// tests. Every mutating call records its arguments and writes a small marker
// file so cache and idempotence behavior can be observed without GDAL.
package geotest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// Call records one engine invocation.
type Call struct {
	Op     string
	Output string
	Inputs []string
}

// FakeEngine is a concurrency-safe in-memory Engine.
type FakeEngine struct {
	mu      sync.Mutex
	Rasters map[string]*geo.RasterInfo
	Vectors map[string]*geo.VectorInfo
	Cells   map[string][]geo.Cell
	Maxima  map[string]float64
	Calls   []Call

	// FailOn makes the named operation return an error, keyed by op name.
	FailOn map[string]error
}

// NewFakeEngine creates an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Rasters: make(map[string]*geo.RasterInfo),
		Vectors: make(map[string]*geo.VectorInfo),
		Cells:   make(map[string][]geo.Cell),
		Maxima:  make(map[string]float64),
		FailOn:  make(map[string]error),
	}
}

// AddRaster registers a raster and creates a marker file at its path.
func (f *FakeEngine) AddRaster(info *geo.RasterInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rasters[info.Path] = info
	_ = os.WriteFile(info.Path, []byte("raster"), 0o644)
}

// AddVector registers a vector dataset and creates a marker file at its path.
func (f *FakeEngine) AddVector(info *geo.VectorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Vectors[info.Path] = info
	_ = os.WriteFile(info.Path, []byte("vector"), 0o644)
}

// CallsFor returns the recorded calls for one operation.
func (f *FakeEngine) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeEngine) record(op, output string, inputs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn[op]; err != nil {
		return err
	}
	f.Calls = append(f.Calls, Call{Op: op, Output: output, Inputs: inputs})
	if output != "" {
		if err := os.WriteFile(output, []byte(op), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeEngine) OpenRaster(_ context.Context, path string) (*geo.RasterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["OpenRaster"]; err != nil {
		return nil, err
	}
	info, ok := f.Rasters[path]
	if !ok {
		return nil, fmt.Errorf("unknown raster %s", path)
	}
	return info, nil
}

func (f *FakeEngine) OpenVector(_ context.Context, path string) (*geo.VectorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["OpenVector"]; err != nil {
		return nil, err
	}
	info, ok := f.Vectors[path]
	if !ok {
		return nil, fmt.Errorf("unknown vector %s", path)
	}
	return info, nil
}

func (f *FakeEngine) BuildVRT(_ context.Context, output string, sources []string, opts geo.VRTOptions) error {
	if err := f.record("BuildVRT", output, sources...); err != nil {
		return err
	}
	f.registerDerived(output, opts.Bounds)
	return nil
}

func (f *FakeEngine) Warp(_ context.Context, output string, sources []string, opts geo.WarpOptions) error {
	if err := f.record("Warp", output, sources...); err != nil {
		return err
	}
	f.registerDerived(output, opts.Bounds)
	return nil
}

func (f *FakeEngine) Rasterize(_ context.Context, output, layer string, opts geo.RasterizeOptions) error {
	if err := f.record("Rasterize", output, layer); err != nil {
		return err
	}
	f.registerDerived(output, opts.Bounds)
	return nil
}

func (f *FakeEngine) MergeVectors(_ context.Context, output string, sources []string, _ geo.MergeOptions) error {
	return f.record("MergeVectors", output, sources...)
}

func (f *FakeEngine) ReprojectPoint(_ context.Context, x, y float64, _, _ int) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["ReprojectPoint"]; err != nil {
		return 0, 0, err
	}
	// Identity transform keeps extent tests simple.
	return x, y, nil
}

func (f *FakeEngine) ReadNonZeroCells(_ context.Context, path string) ([]geo.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["ReadNonZeroCells"]; err != nil {
		return nil, err
	}
	return f.Cells[path], nil
}

func (f *FakeEngine) RasterMax(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["RasterMax"]; err != nil {
		return 0, err
	}
	return f.Maxima[path], nil
}

func (f *FakeEngine) Translate(_ context.Context, output, source string, _ geo.TranslateOptions) error {
	return f.record("Translate", output, source)
}

// registerDerived makes derived outputs openable, inheriting grid geometry
// from the first known source when possible.
func (f *FakeEngine) registerDerived(output string, bounds geo.Extent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Rasters[output]; ok {
		return
	}
	info := &geo.RasterInfo{Path: output, Extent: bounds, EPSG: 4326, UnitName: "degree", XRes: 0.01, YRes: 0.01, Width: 10, Height: 10}
	f.Rasters[output] = info
}
