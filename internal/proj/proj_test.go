package proj

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"epsg:4326":                   WGS84,
		" EPSG:32719 ":                "EPSG:32719",
		"urn:ogc:def:crs:EPSG::32719": "EPSG:32719",
		"CRS:84":                      WGS84,
		"EPSG:900913":                 WebMercator,

		"http://www.opengis.net/def/crs/EPSG/0/4326": WGS84,
		"urn:ogc:def:crs:OGC:1.3:CRS84":              WGS84,
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestUTMForward(t *testing.T) {
	tr, err := Transformer(WGS84, "EPSG:32719")
	require.NoError(t, err)

	p := tr(orb.Point{-70.5, -11.8})
	assert.InDelta(t, 336574.75, p[0], 0.5)
	assert.InDelta(t, 8695124.28, p[1], 0.5)
}

func TestOtherDatumUTM(t *testing.T) {
	// ETRS89 / UTM zone 32N
	tr, err := Transformer(WGS84, "urn:ogc:def:crs:EPSG::25832")
	require.NoError(t, err)

	p := tr(orb.Point{9, 52})
	assert.InDelta(t, 500000, p[0], 0.5)
	assert.InDelta(t, 5761038.21, p[1], 0.5)

	inv, err := Transformer("EPSG:25832", WGS84)
	require.NoError(t, err)
	back := inv(p)
	assert.InDelta(t, 9, back[0], 1e-6)
	assert.InDelta(t, 52, back[1], 1e-6)
}

func TestUTMRoundTrip(t *testing.T) {
	cases := []struct {
		code string
		in   orb.Point
	}{
		{"EPSG:32719", orb.Point{-70.3, -11.6}},
		{"EPSG:32618", orb.Point{-76.2, 4.6}},
		{"EPSG:32631", orb.Point{2.35, 48.85}},
		{"EPSG:25832", orb.Point{9.5, 51.2}},
	}
	for _, tc := range cases {
		fwd, err := Transformer(WGS84, tc.code)
		require.NoError(t, err)
		inv, err := Transformer(tc.code, WGS84)
		require.NoError(t, err)

		out := inv(fwd(tc.in))
		assert.InDelta(t, tc.in[0], out[0], 1e-6, tc.code)
		assert.InDelta(t, tc.in[1], out[1], 1e-6, tc.code)
	}
}

func TestWebMercator(t *testing.T) {
	tr, err := Transformer("EPSG:4326", "EPSG:3857")
	require.NoError(t, err)
	p := tr(orb.Point{0, 0})
	assert.InDelta(t, 0, p[0], 1e-6)
	assert.InDelta(t, 0, p[1], 1e-6)

	p = tr(orb.Point{180, 0})
	assert.InDelta(t, 20037508.34, p[0], 0.01)
}

func TestTransformBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-70.5, -11.8}, Max: orb.Point{-70.4, -11.6}}

	out, err := TransformBound(b, WGS84, "EPSG:32719")
	require.NoError(t, err)
	assert.InDelta(t, 336457.28, out.Min[0], 0.5)
	assert.InDelta(t, 8695124.28, out.Min[1], 0.5)
	assert.InDelta(t, 347471.84, out.Max[0], 0.5)
	assert.InDelta(t, 8717301.93, out.Max[1], 0.5)

	same, err := TransformBound(b, "epsg:4326", WGS84)
	require.NoError(t, err)
	assert.Equal(t, b, same)
}

func TestUnknownCRS(t *testing.T) {
	_, err := Lookup("EPSG:99999")
	var unknown *ErrUnknownCRS
	assert.True(t, errors.As(err, &unknown))

	b := orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}
	out, err := TransformBound(b, WGS84, "EPSG:99999")
	assert.Error(t, err)
	assert.Equal(t, b, out)
}

func TestTransformGeometry(t *testing.T) {
	tr, err := Transformer("EPSG:32719", WGS84)
	require.NoError(t, err)

	g := TransformGeometry(orb.Point{336574.75351, 8695124.27721}, tr).(orb.Point)
	assert.InDelta(t, -70.5, g[0], 1e-5)
	assert.InDelta(t, -11.8, g[1], 1e-5)
	assert.Nil(t, TransformGeometry(nil, tr))
}
