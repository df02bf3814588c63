package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNormalization(t *testing.T) {
	// Every derived naming scheme used by the stages maps back to the
	// source tile's key.
	derived := []string{
		"/data/dems/n35w084.tif",
		"/data/dems/buffered/n35w084_buff.tif",
		"/data/dems/cropped/n35w084_crop.tif",
		"/work/stream_files/n35w084__strm.tif",
		"/work/stream_files/n35w084_buff__strm.tif",
		"/work/land_use/n35w084__lu.vrt",
		"/work/rapid_files/n35w084__row_col_id.txt",
		"/work/flow_files/n35w084__flow.txt",
		"/work/mifns/n35w084__mifn.txt",
		"/work/vdts/n35w084__vdt.txt",
	}
	for _, path := range derived {
		assert.Equal(t, "n35w084", Key(path), path)
	}
}

func TestKeyStopsAtFirstDot(t *testing.T) {
	assert.Equal(t, "tile", Key("/x/tile.1.tif"))
}

func TestZipCompleteness(t *testing.T) {
	dems := []string{"/d/a.tif", "/d/b.tif", "/d/c.tif"}
	// Only two tiles have stream rasters, one has land use, results arrive
	// in arbitrary order.
	streams := []string{"/s/c__strm.tif", "/s/a__strm.tif"}
	landUse := []string{"/l/b__lu.vrt"}

	bundles := Zip(dems, streams, landUse, nil, nil)
	require.Len(t, bundles, 3)

	byKey := make(map[string]Bundle)
	for _, b := range bundles {
		byKey[b.Key()] = b
	}

	assert.Equal(t, "/s/a__strm.tif", byKey["a"].Stream)
	assert.Empty(t, byKey["a"].LandUse)
	assert.Equal(t, "/l/b__lu.vrt", byKey["b"].LandUse)
	assert.Empty(t, byKey["b"].Stream)
	assert.Equal(t, "/s/c__strm.tif", byKey["c"].Stream)
	assert.Empty(t, byKey["c"].RowColIndex)
	assert.Empty(t, byKey["c"].FloodFlow)
}

func TestZipSkipsEmptyEntries(t *testing.T) {
	bundles := Zip([]string{"/d/a.tif", ""}, []string{"", "/s/a__strm.tif"}, nil, nil, nil)
	require.Len(t, bundles, 1)
	assert.Equal(t, "/s/a__strm.tif", bundles[0].Stream)
}

func TestZipBufferedDEMsJoinUnbufferedOutputs(t *testing.T) {
	// Stream rasters are named from the buffered DEM but strip the marker.
	bundles := Zip(
		[]string{"/d/buffered/a_buff.tif"},
		[]string{"/s/a__strm.tif"},
		nil,
		[]string{"/r/a__row_col_id.txt"},
		[]string{"/f/a__flow.txt"},
	)
	require.Len(t, bundles, 1)
	b := bundles[0]
	assert.Equal(t, "a", b.Key())
	assert.Equal(t, "/s/a__strm.tif", b.Stream)
	assert.Equal(t, "/r/a__row_col_id.txt", b.RowColIndex)
	assert.Equal(t, "/f/a__flow.txt", b.FloodFlow)
}
