package domain

import (
	"context"
	"log/slog"
	"maps"
)

// EnrichWithCountry fills the country attribute of a labeled point by reverse
// geocoding its coordinates. Points that already carry a country, a nil
// geocoder, and lookup failures all leave the point unchanged.
func EnrichWithCountry(ctx context.Context, lp LabeledPoint, geocoder Geocoder, logger *slog.Logger) LabeledPoint {
	if geocoder == nil || lp.Country() != "" {
		return lp
	}

	result, err := geocoder.ReverseGeocode(ctx, lp.Y, lp.X)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", lp.Y,
			"lon", lp.X,
			"error", err,
		)
		return lp
	}
	if result.Country == "" {
		return lp
	}

	out := LabeledPoint{Point: lp.Point, Attributes: maps.Clone(lp.Attributes)}
	out.Set(AttrCountry, result.Country)
	return out
}
