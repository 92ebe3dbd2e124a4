package rover

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WorldMapGeoJSON exports the accumulated world map as a GeoJSON
// FeatureCollection in world-grid coordinates: one MultiPoint feature per
// channel holding every cell at or above minConfidence, plus the rover's
// traveled track as a LineString when available.
func WorldMapGeoJSON(snap WorldMapSnapshot, track []Point, minConfidence float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	channels := []struct {
		name  Channel
		cells []float64
	}{
		{ChannelObstacle, snap.Obstacle},
		{ChannelRock, snap.Rock},
		{ChannelNavigable, snap.Navigable},
	}

	for _, ch := range channels {
		var mp orb.MultiPoint
		maxConf := 0.0
		for i, v := range ch.cells {
			if v < minConfidence || v == 0 {
				continue
			}
			mp = append(mp, orb.Point{float64(i % snap.Size), float64(i / snap.Size)})
			if v > maxConf {
				maxConf = v
			}
		}
		if len(mp) == 0 {
			continue
		}
		f := geojson.NewFeature(mp)
		f.Properties["channel"] = ch.name.String()
		f.Properties["cellCount"] = len(mp)
		f.Properties["maxConfidence"] = maxConf
		fc.Append(f)
	}

	if len(track) >= 2 {
		ls := make(orb.LineString, len(track))
		for i, p := range track {
			ls[i] = orb.Point{p.X, p.Y}
		}
		f := geojson.NewFeature(ls)
		f.Properties["channel"] = "track"
		f.Properties["pointCount"] = len(ls)
		fc.Append(f)
	}

	return fc
}
