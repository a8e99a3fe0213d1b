package registry

import "github.com/aretw0/canopy/pkg/domain"

// LandForms is the option set of the Land Forms stage.
var LandForms = []domain.Option{
	{Code: "LF01", Description: "River Valley - Fertile lowland area alongside rivers"},
	{Code: "LF02", Description: "Mountain Valley - High altitude valley between mountains"},
	{Code: "LF03", Description: "Glacial Valley - U-shaped valley formed by glaciers"},
	{Code: "LF04", Description: "Coastal Plain - Flat land adjacent to ocean"},
	{Code: "LF05", Description: "Prairie - Grassland plain with deep fertile soil"},
	{Code: "LF06", Description: "Floodplain - Low-lying area adjacent to rivers"},
	{Code: "LF07", Description: "Rolling Hills - Gently undulating terrain"},
	{Code: "LF08", Description: "Foothills - Elevated land at mountain base"},
	{Code: "LF09", Description: "Plateau - Elevated flat-topped landform"},
	{Code: "LF10", Description: "Canyon - Deep narrow valley with steep sides"},
}

// SoilTypes is the option set of the Soil Type stage.
var SoilTypes = []domain.Option{
	{Code: "ST01", Description: "Sandy Soil - Well-draining, low water retention"},
	{Code: "ST02", Description: "Clay Soil - Poor drainage, high water retention"},
	{Code: "ST03", Description: "Loamy Soil - Balanced drainage and nutrients"},
	{Code: "ST04", Description: "Silt Soil - Fine particles, good water retention"},
	{Code: "ST05", Description: "Peat Soil - High organic matter, acidic"},
	{Code: "ST06", Description: "Chalky Soil - Alkaline, well-draining"},
	{Code: "ST07", Description: "Saline Soil - High salt content"},
	{Code: "ST08", Description: "Alkaline Soil - High pH, poor nutrient availability"},
	{Code: "ST09", Description: "Acidic Soil - Low pH, high acidity"},
	{Code: "ST10", Description: "Waterlogged Soil - Poor drainage, anaerobic conditions"},
	{Code: "ST11", Description: "Rocky Soil - High stone content, poor water retention"},
	{Code: "ST12", Description: "Organic Soil - High organic matter content"},
	{Code: "ST13", Description: "Compacted Soil - Dense, poor root penetration"},
	{Code: "ST14", Description: "Volcanic Soil - Rich in minerals, well-draining"},
	{Code: "ST15", Description: "Desert Soil - Low organic matter, high sand content"},
	{Code: "ST16", Description: "Tropical Soil - High weathering, low nutrients"},
	{Code: "ST17", Description: "Permafrost Soil - Permanently frozen subsoil"},
	{Code: "ST18", Description: "Low-Activity Clay Soil (Lixisols) - Weathered clay with low nutrient retention"},
}

func rng(index int, name, param, ref string, min, max float64, unit string) domain.Stage {
	return domain.Stage{
		Index:        index,
		Kind:         domain.KindRange,
		Name:         name,
		ParameterID:  param,
		EvaluatorRef: ref,
		Min:          min,
		Max:          max,
		Unit:         unit,
	}
}

// Default returns the 24 built-in stages: two categorical selections,
// twenty-one environmental ranges and the Final Results display.
func Default() []domain.Stage {
	return []domain.Stage{
		{Index: 1, Kind: domain.KindCategorical, Name: "Land Forms", ParameterID: "land_form", EvaluatorRef: "tree_land_form", Options: LandForms},
		{Index: 2, Kind: domain.KindCategorical, Name: "Soil Type", ParameterID: "soil_type", EvaluatorRef: "tree_soil_type", Options: SoilTypes},
		rng(3, "Soil Salt Range", "soil_salt", "tree_soil_salt_range", 0.1, 5.0, "EC (dS/m)"),
		rng(4, "Soil Pollution Range", "soil_pollution", "tree_soil_pollution_range", 1, 10, "AQI"),
		rng(5, "Soil Drainage Range", "soil_drainage", "tree_soil_drainage_range", 1, 5, "Scale"),
		rng(6, "Erosion Tolerance Range", "erosion_tolerance", "tree_erosion_tolerance_range", 1, 10, "Resistance"),
		rng(7, "Soil pH Level", "soil_ph", "tree_soil_ph_level", 3.5, 9.0, "pH"),
		rng(8, "Water pH Level", "water_ph", "tree_water_ph_level", 3.5, 9.0, "pH"),
		rng(9, "Rainfall Range", "rainfall", "tree_rainfall_range", 200, 4000, "mm/year"),
		rng(10, "Flood Tolerance Range", "flood_tolerance", "tree_flood_tolerance_range", 1, 10, "Level"),
		rng(11, "Groundwater Depth Range", "groundwater_depth", "tree_groundwater_depth_range", 0.5, 50, "meters"),
		rng(12, "Humidity Range", "humidity", "tree_humidity_range", 30, 95, "%"),
		rng(13, "Air Pollution Tolerance Range", "air_pollution_tolerance", "tree_air_pollution_tolerance_range", 1, 10, "AQI"),
		rng(14, "Wind Speed Range", "wind_speed", "tree_wind_speed_range", 0, 50, "km/h"),
		rng(15, "Temperature Range", "temperature", "tree_temperature_range", -20, 50, "°C"),
		rng(16, "Light Intensity Range", "light_intensity", "tree_light_intensity_range", 100, 100000, "lux"),
		rng(17, "UVA Light Range", "uva_light", "tree_uva_light", 0, 100, "µW/cm²"),
		rng(18, "UVB Light Range", "uvb_light", "tree_uvb_light", 0, 50, "µW/cm²"),
		rng(19, "Red/Far-Red Light Range", "red_farred_light", "tree_red_farred_light", 0.5, 2.0, "ratio"),
		rng(20, "Blue Light Range", "blue_light", "tree_blue_light", 10, 500, "µmol/m²/s"),
		rng(21, "Green Light Range", "green_light", "tree_green_light", 5, 200, "µmol/m²/s"),
		rng(22, "Infrared Light Range", "infrared_light", "tree_infrared_light", 50, 1000, "W/m²"),
		rng(23, "Direct Sunlight Range", "direct_sunlight", "tree_direct_sunlight", 2, 12, "hours/day"),
		{Index: 24, Kind: domain.KindTerminal, Name: "Final Results", ParameterID: "final_results"},
	}
}
