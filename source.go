package main

import (
	"context"
	"errors"
	"fmt"

	"git.fiblab.net/sim/saferoute/provider"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// sources holds the collaborators opened from the source flags.
type sources struct {
	providers provider.Providers
	// 街道数据来自快照文件时非空（benchmark需要路网范围）
	streets *provider.Snapshot

	mongoURI  string
	client    *mongo.Client
	db        provider.Mongo
	snapshots map[string]*provider.Snapshot
}

// openSources opens every configured source. Snapshot files named by more
// than one flag are loaded once; mongo collections share one client.
func openSources(ctx context.Context, mongoURI string, streets, crimes, places, transit *Path) (*sources, error) {
	if streets == nil {
		return nil, errors.New("a street network source is required")
	}
	s := &sources{mongoURI: mongoURI, snapshots: make(map[string]*provider.Snapshot)}
	if streets.IsFile() {
		snap, err := s.snapshot(streets)
		if err != nil {
			return nil, err
		}
		s.streets = snap
		s.providers.Streets = snap
	} else {
		coll, err := s.collection(ctx, streets)
		if err != nil {
			return nil, err
		}
		s.db.Ways = coll
		s.providers.Streets = &s.db
	}
	if crimes != nil {
		if crimes.IsFile() {
			snap, err := s.snapshot(crimes)
			if err != nil {
				return nil, err
			}
			s.providers.Crimes = snap
		} else {
			coll, err := s.collection(ctx, crimes)
			if err != nil {
				return nil, err
			}
			s.db.Crimes = coll
			s.providers.Crimes = &s.db
		}
	}
	if places != nil {
		if places.IsFile() {
			snap, err := s.snapshot(places)
			if err != nil {
				return nil, err
			}
			s.providers.Places = snap
		} else {
			coll, err := s.collection(ctx, places)
			if err != nil {
				return nil, err
			}
			s.db.Places = coll
			s.providers.Places = &s.db
		}
	}
	if transit != nil {
		if transit.IsFile() {
			snap, err := s.snapshot(transit)
			if err != nil {
				return nil, err
			}
			s.providers.Transit = snap
		} else {
			coll, err := s.collection(ctx, transit)
			if err != nil {
				return nil, err
			}
			s.db.Transit = coll
			s.providers.Transit = &s.db
		}
	}
	return s, nil
}

func (s *sources) snapshot(p *Path) (*provider.Snapshot, error) {
	if snap, ok := s.snapshots[p.File]; ok {
		return snap, nil
	}
	snap, err := provider.LoadSnapshot(p.File)
	if err != nil {
		return nil, err
	}
	s.snapshots[p.File] = snap
	return snap, nil
}

func (s *sources) collection(ctx context.Context, p *Path) (*mongo.Collection, error) {
	if s.client == nil {
		if s.mongoURI == "" {
			return nil, fmt.Errorf("source %s needs -mongo_uri", p)
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.mongoURI))
		if err != nil {
			// uri可能包含密码，不打印
			return nil, fmt.Errorf("connect mongo for %s: %w", p, err)
		}
		s.client = client
	}
	return s.client.Database(p.DB).Collection(p.Coll), nil
}

func (s *sources) Close() {
	if s.client != nil {
		if err := s.client.Disconnect(context.Background()); err != nil {
			log.Warnf("disconnect mongo: %v", err)
		}
	}
}
