package stages

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/tabular"
)

// BuildRowColIndex joins the simulation flow table against a tile's stream
// raster. The output is a tab-separated file with one line per nonzero raster
// cell, carrying the cell's row, column, stream identifier and the flow
// columns for that identifier. Identifiers absent from the table are emitted
// with zero flows so the solver sees a complete grid.
func (r *Runner) BuildRowColIndex(ctx context.Context, strm string) (string, error) {
	output := filepath.Join(r.WS.RowColDir(), artifact.Key(strm)+"__row_col_id.txt")
	if r.upToDate(output, r.Settings.SimulationFlowFile, strm) {
		r.logger.Debug("Row-col index up to date", "output", output)
		return output, nil
	}

	table, err := tabular.Read(r.Settings.SimulationFlowFile, r.ArrayReader)
	if err != nil {
		return "", fmt.Errorf("read simulation flow table: %w", err)
	}
	if len(table.Columns) == 0 {
		return "", fmt.Errorf("simulation flow table %s is empty", r.Settings.SimulationFlowFile)
	}

	idColumn := r.Resolved.SimulationID(func() string {
		first := table.Columns[0]
		r.logger.Warn("No simulation id column configured, assuming first column", "column", first)
		return first
	})
	if table.ColumnIndex(idColumn) < 0 {
		first := table.Columns[0]
		r.logger.Warn("Configured simulation id column not in table, using first column",
			"configured", idColumn, "column", first)
		idColumn = first
		r.Resolved.OverrideSimulationID(first)
	}

	flowColumns := r.Settings.SimulationFlowColumns
	if len(flowColumns) == 0 {
		for _, c := range table.Columns {
			if c != idColumn {
				flowColumns = append(flowColumns, c)
			}
		}
	} else {
		for _, c := range flowColumns {
			if table.ColumnIndex(c) < 0 {
				return "", fmt.Errorf("flow column %q not present in %s", c, r.Settings.SimulationFlowFile)
			}
		}
	}
	if base := r.Settings.BaseFlowColumn; base != "" && table.ColumnIndex(base) >= 0 && !contains(flowColumns, base) {
		flowColumns = append(flowColumns, base)
	}
	r.Resolved.SetFlowColumns(flowColumns)

	table = table.Select(append([]string{idColumn}, flowColumns...))
	table = table.DedupeBy(idColumn)
	if table.Empty() {
		return "", fmt.Errorf("simulation flow table %s has no usable rows", r.Settings.SimulationFlowFile)
	}
	flows := table.IndexByID(idColumn)

	cells, err := r.Engine.ReadNonZeroCells(ctx, strm)
	if err != nil {
		return "", fmt.Errorf("read stream raster %s: %w", strm, err)
	}

	matched := 0
	for _, c := range cells {
		if _, ok := flows[c.Value]; ok {
			matched++
		}
	}
	if matched == 0 {
		r.logger.Warn("No stream cells matched the simulation flow table",
			"raster", strm, "cells", len(cells))
	}

	zeros := make([]string, len(flowColumns))
	for i := range zeros {
		zeros[i] = "0"
	}

	f, err := os.Create(output)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ROW\tCOL\t%s\t%s\n", idColumn, strings.Join(flowColumns, "\t"))
	for _, c := range cells {
		values, ok := flows[c.Value]
		if !ok {
			values = zeros
		} else {
			// IndexByID keeps the id column first; drop it here.
			values = values[1:]
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", c.Row, c.Col, strconv.FormatInt(c.Value, 10), strings.Join(values, "\t"))
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}

	r.Ledger.Record(output, r.Settings.SimulationFlowFile, strm)
	return output, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
