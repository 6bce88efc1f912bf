package main

import (
	"context"
	"flag"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"math/rand"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/saferoute/geo"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount   = flag.Int("benchmark.count", 1000, "the random routing count for benchmark")
	benchmarkMaxDist = flag.Float64("benchmark.max_distance", 3000, "the max straight-line distance (m) between origin and destination")
	benchmarkSeed    = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU     = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

// randomRequests draws count origin/destination pairs inside b, at most
// maxDist meters apart.
func randomRequests(e *rand.Rand, b orb.Bound, count int, maxDist float64) []*connect.Request[GetRoutesRequest] {
	point := func() geo.Point {
		return geo.NewPoint(
			b.Min.Lat()+e.Float64()*(b.Max.Lat()-b.Min.Lat()),
			b.Min.Lon()+e.Float64()*(b.Max.Lon()-b.Min.Lon()),
		)
	}
	reqs := make([]*connect.Request[GetRoutesRequest], 0, count)
	for len(reqs) < count {
		origin, destination := point(), point()
		if geo.Distance(origin, destination) > maxDist {
			// 以起点为中心按比例拉近终点
			t := maxDist / geo.Distance(origin, destination) * e.Float64()
			destination = geo.Blend(origin, destination, t)
		}
		reqs = append(reqs, connect.NewRequest(&GetRoutesRequest{
			Origin:      origin,
			Destination: destination,
		}))
	}
	return reqs
}

func runBenchmark(server *SafeRouteServer, src *sources) {
	if src.streets == nil {
		log.Fatal("benchmark needs a snapshot file as street network source")
	}
	b := src.streets.Bound()
	if b.IsZero() {
		log.Fatal("benchmark needs a non-empty street network")
	}
	if *benchmarkCount < 1 {
		log.Fatalf("invalid benchmark count: %d", *benchmarkCount)
	}
	log.Logger.SetLevel(logrus.WarnLevel)
	// 设置随机种子
	e := rand.New(rand.NewSource(*benchmarkSeed))
	// 随机生成benchmarkCount个路径规划请求
	reqs := randomRequests(e, b, *benchmarkCount, *benchmarkMaxDist)

	// 开始benchmark
	start := time.Now()
	var wg sync.WaitGroup
	var success atomic.Int32
	if *benchmarkCPU == 1 {
		for _, req := range reqs {
			res, err := server.GetRoutes(context.Background(), req)
			if err != nil {
				log.Debug("benchmark request failed, err:", err)
				continue
			}
			if len(res.Msg.Routes) > 0 {
				success.Add(1)
			}
		}
	} else {
		// 设置cpu数量
		runtime.GOMAXPROCS(*benchmarkCPU)
		wg.Add(len(reqs))
		for _, req := range reqs {
			go func(req *connect.Request[GetRoutesRequest]) {
				defer wg.Done()
				res, err := server.GetRoutes(context.Background(), req)
				if err != nil {
					log.Debug("benchmark request failed, err:", err)
					return
				}
				if len(res.Msg.Routes) > 0 {
					success.Add(1)
				}
			}(req)
		}
		wg.Wait()
	}
	timeCost := time.Since(start) * time.Duration(*benchmarkCPU)
	log.Error(
		"benchmark finished", "\n",
		"count:", len(reqs), "\n",
		"time:", timeCost, "\n",
		"avg:", timeCost/time.Duration(len(reqs)), "\n",
		"success:", success.Load(), "\n",
	)
}
