package processchain

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mahirjain10/savana-gateway/internal/geo"
	"github.com/mahirjain10/savana-gateway/internal/types"
)

const (
	DefaultHUC12Layer   = "wbdhu12_a_us_september2021 — WBDHU12"
	DefaultElevationURL = "/vsicurl/https://storage.googleapis.com/tomorrownow-actinia-dev/SpatialData/LC20_Elev_220_cog.tif"
	landCoverURLPattern = "/vsicurl/https://storage.googleapis.com/tomorrownow-actinia-dev/nlcd/%s.tif"

	elevation     = "usgs_3dep_30m"
	direction     = "usgs_3dep_30m_direction"
	accumulation  = "usgs_3dep_30m_accumulation"
	streams       = "usgs_3dep_30m_streams"
	streamsThin   = "usgs_3dep_30m_streams_thin"
	circle        = "circle"
	pathToStream  = "path_to_stream"
	basin         = "point_basin"
	basinVector   = "point_basin_cloud"
	slope         = "slope"
	regionRes     = "30"
	moduleMemory  = "10000"
	streamMinArea = "3000"
	snapRadius    = "200"
)

// LandCoverYears are the NLCD releases summarised over every basin.
var LandCoverYears = []int{2001, 2004, 2006, 2008, 2011, 2013, 2016, 2019}

// Builder assembles drain chains. VectorSource is the OGR datasource holding
// the HUC12 boundaries, which also receives the exported vectors.
type Builder struct {
	VectorSource string
	HUC12Layer   string
	ElevationURL string
}

func NewBuilder(vectorSource string) *Builder {
	return &Builder{
		VectorSource: vectorSource,
		HUC12Layer:   DefaultHUC12Layer,
		ElevationURL: DefaultElevationURL,
	}
}

// DrainInput is a validated drain request in lon/lat.
type DrainInput struct {
	Point  geo.Point
	Extent geo.Extent
	HUC12  string
}

// NewDrainInput validates the raw request values.
func NewDrainInput(point string, extent [4]float64, huc12 string) (DrainInput, error) {
	if !ValidHUC12(huc12) {
		return DrainInput{}, invalid("huc12", fmt.Sprintf("%q is not a 12 digit hydrologic unit code", huc12), nil)
	}
	p, err := geo.ParsePoint(point)
	if err != nil {
		return DrainInput{}, invalid("point", "cannot parse coordinate", err)
	}
	e, err := geo.NewExtent(extent)
	if err != nil {
		return DrainInput{}, invalid("extent", "cannot parse corners", err)
	}
	if !e.Contains(p) {
		return DrainInput{}, invalid("point", "outside the requested extent", nil)
	}
	return DrainInput{Point: p, Extent: e, HUC12: huc12}, nil
}

// BuildDrain returns the chain that derives the drainage basin of the input
// point and summarises slope, elevation and land cover over it. The chain
// depends only on its inputs.
func (b *Builder) BuildDrain(in DrainInput) (*types.ProcessChain, error) {
	if b.VectorSource == "" {
		return nil, errors.New("builder has no vector source configured")
	}
	if !ValidHUC12(in.HUC12) {
		return nil, invalid("huc12", fmt.Sprintf("%q is not a 12 digit hydrologic unit code", in.HUC12), nil)
	}
	if !in.Extent.Contains(in.Point) {
		return nil, invalid("point", "outside the requested extent", nil)
	}
	projected, err := geo.ToConus(in.Point)
	if err != nil {
		return nil, invalid("point", "cannot reproject to EPSG:5070", err)
	}
	if _, err := geo.ExtentToConus(in.Extent); err != nil {
		return nil, invalid("extent", "cannot reproject to EPSG:5070", err)
	}
	where, err := Equals("huc12", in.HUC12)
	if err != nil {
		return nil, invalid("huc12", "cannot build filter", err)
	}

	region := "huc12_" + in.HUC12
	coords := projected.String()

	steps := []types.Step{
		{
			Module: "v.in.ogr",
			ID:     "v.in.ogr_hydro_" + in.HUC12,
			Inputs: []types.Param{
				param("input", b.VectorSource),
				param("layer", b.HUC12Layer),
				param("where", where),
				param("location", region),
			},
			Outputs: []types.Param{param("output", region)},
		},
		{
			Module: "v.proj",
			ID:     "v.proj_hydro_" + in.HUC12,
			Inputs: []types.Param{
				param("location", region),
				param("mapset", "PERMANENT"),
				param("input", region),
				param("smax", "10000"),
			},
		},
		{
			Module: "g.region",
			ID:     "g.region_hydro_" + in.HUC12,
			Inputs: []types.Param{param("res", regionRes), param("vector", region)},
		},
		{
			Module: "r.import",
			ID:     "r.import_usgs30m_cog",
			Inputs: []types.Param{
				param("input", b.ElevationURL),
				param("resample", "bilinear"),
				param("memory", moduleMemory),
				param("extent", "region"),
			},
			Outputs: []types.Param{param("output", elevation)},
		},
		{
			Module: "r.watershed",
			ID:     "r.watershed_usgs_3dep_30",
			Inputs: []types.Param{
				param("elevation", elevation),
				param("drainage", direction),
				param("accumulation", accumulation),
				param("stream", streams),
				param("threshold", streamMinArea),
				param("memory", moduleMemory),
			},
		},
		{
			Module: "r.thin",
			ID:     "r.thin_usgs_3dep_30",
			Inputs: []types.Param{param("input", streams), param("output", streamsThin)},
		},
		{
			Module:  "r.to.vect",
			ID:      "r.to.vect_streams",
			Flags:   "s",
			Inputs:  []types.Param{param("input", streamsThin), param("type", "line")},
			Outputs: []types.Param{param("output", streams)},
		},
		{
			Module: "v.out.ogr",
			ID:     "v.out.ogr_streams",
			Inputs: []types.Param{
				param("input", streams),
				param("type", "line"),
				param("format", "PostgreSQL"),
				param("output_type", "line"),
			},
			Outputs: []types.Param{param("output", b.VectorSource)},
		},
		{
			Module:  "r.circle",
			ID:      "r.circle_point",
			Flags:   "b",
			Inputs:  []types.Param{param("coordinates", coords), param("max", snapRadius)},
			Outputs: []types.Param{param("output", circle)},
		},
		{
			Module: "r.drain",
			ID:     "r.drain_point",
			Flags:  "dn",
			Inputs: []types.Param{
				param("start_coordinates", coords),
				param("input", elevation),
				param("direction", direction),
			},
			Outputs: []types.Param{param("output", pathToStream)},
		},
		{
			Module: "r.stream.basins",
			ID:     "r.stream.basins_point",
			Flags:  "c",
			Inputs: []types.Param{
				param("direction", direction),
				param("stream_rast", circle),
				param("memory", moduleMemory),
			},
			Outputs: []types.Param{param("basins", basin)},
		},
		{
			Module:  "r.to.vect",
			ID:      "r.to.vect_basin",
			Flags:   "s",
			Inputs:  []types.Param{param("input", basin), param("type", "area"), param("column", "value")},
			Outputs: []types.Param{param("output", basinVector)},
		},
		{
			Module: "r.mask",
			ID:     "r.mask_basin",
			Inputs: []types.Param{param("raster", basin), param("maskcats", "*"), param("layer", "1")},
		},
	}

	for _, year := range LandCoverYears {
		steps = append(steps, landCoverSteps(year)...)
	}

	steps = append(steps,
		types.Step{
			Module:  "r.slope.aspect",
			ID:      "r.slope.aspect_" + in.HUC12,
			Inputs:  []types.Param{param("elevation", elevation), param("nprocs", "4")},
			Outputs: []types.Param{param("slope", slope)},
		},
		types.Step{
			Module: "r.univar",
			ID:     "r.univar_slope",
			Flags:  "t",
			Inputs: []types.Param{param("map", slope), param("separator", "|")},
		},
		types.Step{
			Module: "r.univar",
			ID:     "r.univar_3dep_30m",
			Flags:  "t",
			Inputs: []types.Param{param("map", elevation), param("separator", "|")},
		},
		types.Step{
			Module: "v.out.ogr",
			ID:     "v.out.ogr_basin",
			Inputs: []types.Param{
				param("input", basinVector),
				param("layer", "1"),
				param("type", "area"),
				param("format", "PostgreSQL"),
			},
			Outputs: []types.Param{param("output", b.VectorSource)},
		},
		types.Step{
			Module: "r.mask",
			ID:     "r.mask_remove",
			Flags:  "r",
			Inputs: []types.Param{},
		},
	)

	chain := types.NewProcessChain(steps)
	if err := chain.Validate(); err != nil {
		return nil, fmt.Errorf("drain chain for %s: %w", in.HUC12, err)
	}
	return chain, nil
}

func landCoverSteps(year int) []types.Step {
	y := strconv.Itoa(year)
	name := "nlcd_" + y + "_cog"
	return []types.Step{
		{
			Module: "r.import",
			ID:     "r.import_" + name,
			Inputs: []types.Param{
				param("input", fmt.Sprintf(landCoverURLPattern, name)),
				param("memory", moduleMemory),
				param("extent", "region"),
			},
			Outputs: []types.Param{param("output", name)},
		},
		{
			Module: "r.stats",
			ID:     "r.stats_" + y,
			Flags:  "acpl",
			Inputs: []types.Param{
				param("input", name),
				param("separator", "|"),
				param("null_value", "*"),
				param("nsteps", "255"),
			},
		},
	}
}

func param(name, value string) types.Param {
	return types.Param{Param: name, Value: value}
}
