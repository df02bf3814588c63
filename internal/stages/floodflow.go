package stages

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/tabular"
)

// BuildFloodFlow filters the flood flow table down to the stream identifiers
// actually present in a tile's stream raster. Unlike the row-col index this
// keeps the table shape: one comma-separated row per matched identifier, all
// original columns.
func (r *Runner) BuildFloodFlow(ctx context.Context, strm string) (string, error) {
	output := filepath.Join(r.WS.FlowFileDir(), artifact.Key(strm)+"__flow.txt")
	if r.upToDate(output, r.Settings.FloodFlowFile, strm) {
		r.logger.Debug("Flood flow file up to date", "output", output)
		return output, nil
	}

	table, err := tabular.Read(r.Settings.FloodFlowFile, r.ArrayReader)
	if err != nil {
		return "", fmt.Errorf("read flood flow table: %w", err)
	}
	if len(table.Columns) == 0 {
		return "", fmt.Errorf("flood flow table %s is empty", r.Settings.FloodFlowFile)
	}

	idColumn := table.Columns[0]
	table = table.DedupeBy(idColumn)
	if table.Empty() {
		return "", fmt.Errorf("flood flow table %s has no usable rows", r.Settings.FloodFlowFile)
	}
	flows := table.IndexByID(idColumn)

	cells, err := r.Engine.ReadNonZeroCells(ctx, strm)
	if err != nil {
		return "", fmt.Errorf("read stream raster %s: %w", strm, err)
	}
	distinct := make(map[int64]struct{}, len(cells))
	for _, c := range cells {
		distinct[c.Value] = struct{}{}
	}
	ids := make([]int64, 0, len(distinct))
	for id := range distinct {
		if _, ok := flows[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		r.logger.Warn("No stream cells matched the flood flow table",
			"raster", strm, "cells", len(cells))
	}

	f, err := os.Create(output)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, strings.Join(table.Columns, ","))
	for _, id := range ids {
		fmt.Fprintln(w, strings.Join(flows[id], ","))
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}

	r.Ledger.Record(output, r.Settings.FloodFlowFile, strm)
	return output, nil
}
