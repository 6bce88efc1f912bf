package provider

import (
	"context"
	"fmt"

	"git.fiblab.net/sim/saferoute/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const EARTH_RADIUS = 6_378_100.0

type mongoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

func (p mongoPoint) point() geo.Point {
	if len(p.Coordinates) < 2 {
		return geo.Point{}
	}
	return geo.Point{Lat: p.Coordinates[1], Lng: p.Coordinates[0]}
}

type mongoWay struct {
	ID    int64             `bson:"_id"`
	Tags  map[string]string `bson:"tags"`
	Nodes []struct {
		ID  int64   `bson:"id"`
		Lat float64 `bson:"lat"`
		Lon float64 `bson:"lon"`
	} `bson:"nodes"`
}

type mongoCrime struct {
	Location mongoPoint `bson:"location"`
	Category string     `bson:"category"`
	Weight   float64    `bson:"weight"`
	Period   string     `bson:"period"`
}

type mongoPlace struct {
	ID       string     `bson:"_id"`
	Name     string     `bson:"name"`
	Location mongoPoint `bson:"location"`
	Category string     `bson:"category"`
	OpenNow  *bool      `bson:"open_now"`
}

type mongoStop struct {
	ID       string     `bson:"_id"`
	Name     string     `bson:"name"`
	Location mongoPoint `bson:"location"`
}

// Mongo reads collaborator data from MongoDB collections with 2dsphere indexes:
// ways carry a GeoJSON `geometry`, the other collections a GeoJSON `location`.
// A nil collection leaves that collaborator unavailable.
type Mongo struct {
	Ways    *mongo.Collection
	Crimes  *mongo.Collection
	Places  *mongo.Collection
	Transit *mongo.Collection
}

func geoJSONPolygon(poly orb.Polygon) bson.M {
	rings := make([][][]float64, len(poly))
	for i, ring := range poly {
		coords := make([][]float64, len(ring))
		for j, p := range ring {
			coords[j] = []float64{p[0], p[1]}
		}
		rings[i] = coords
	}
	return bson.M{"type": "Polygon", "coordinates": rings}
}

func centerSphere(p geo.Point, radius float64) bson.M {
	return bson.M{"$geoWithin": bson.M{
		"$centerSphere": bson.A{bson.A{p.Lng, p.Lat}, radius / EARTH_RADIUS},
	}}
}

func (m *Mongo) WaysInBound(ctx context.Context, b orb.Bound) (osm.Ways, error) {
	filter := bson.M{"geometry": bson.M{"$geoIntersects": bson.M{"$geometry": geoJSONPolygon(b.ToPolygon())}}}
	var docs []mongoWay
	if err := find(ctx, m.Ways, filter, &docs); err != nil {
		return nil, err
	}
	ways := make(osm.Ways, 0, len(docs))
	for _, d := range docs {
		w := SnapshotWay{ID: d.ID, Tags: d.Tags}
		for _, n := range d.Nodes {
			w.Nodes = append(w.Nodes, SnapshotNode{ID: n.ID, Lat: n.Lat, Lon: n.Lon})
		}
		ways = append(ways, ToOSMWay(w))
	}
	return ways, nil
}

func (m *Mongo) CrimesInPolygon(ctx context.Context, poly orb.Polygon) ([]CrimeIncident, error) {
	filter := bson.M{"location": bson.M{"$geoWithin": bson.M{"$geometry": geoJSONPolygon(poly)}}}
	var docs []mongoCrime
	if err := find(ctx, m.Crimes, filter, &docs); err != nil {
		return nil, err
	}
	crimes := make([]CrimeIncident, len(docs))
	for i, d := range docs {
		crimes[i] = CrimeIncident{Point: d.Location.point(), Category: d.Category, Weight: d.Weight, Period: d.Period}
	}
	return crimes, nil
}

func (m *Mongo) PlacesNear(ctx context.Context, p geo.Point, radius float64) ([]Place, error) {
	var docs []mongoPlace
	if err := find(ctx, m.Places, bson.M{"location": centerSphere(p, radius)}, &docs); err != nil {
		return nil, err
	}
	places := make([]Place, len(docs))
	for i, d := range docs {
		places[i] = Place{ID: d.ID, Name: d.Name, Point: d.Location.point(), Category: PlaceCategory(d.Category), OpenNow: d.OpenNow}
	}
	return places, nil
}

func (m *Mongo) StopsNear(ctx context.Context, p geo.Point, radius float64) ([]TransitStop, error) {
	var docs []mongoStop
	if err := find(ctx, m.Transit, bson.M{"location": centerSphere(p, radius)}, &docs); err != nil {
		return nil, err
	}
	stops := make([]TransitStop, len(docs))
	for i, d := range docs {
		stops[i] = TransitStop{ID: d.ID, Name: d.Name, Point: d.Location.point()}
	}
	return stops, nil
}

func find[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, out *[]T) error {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
			return fmt.Errorf("find %s: %w: %v", coll.Name(), ErrTransient, err)
		}
		return fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return nil
}

// Providers exposes the collaborators whose collection is configured.
func (m *Mongo) Providers() Providers {
	p := Providers{}
	if m.Ways != nil {
		p.Streets = m
	}
	if m.Crimes != nil {
		p.Crimes = m
	}
	if m.Places != nil {
		p.Places = m
	}
	if m.Transit != nil {
		p.Transit = m
	}
	return p
}
