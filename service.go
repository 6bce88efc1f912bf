package main

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/router"
)

const (
	SafeRouteServiceName = "saferoute.v1.SafeRouteService"

	SafeRouteServiceGetRoutesProcedure = "/saferoute.v1.SafeRouteService/GetRoutes"

	// 错误码与缓存命中通过header返回，body保持与RouteSet一致
	ErrorCodeHeader = "Saferoute-Error-Code"
	CacheHeader     = "Saferoute-Cache"
)

type GetRoutesRequest struct {
	Origin      geo.Point `json:"origin"`
	Destination geo.Point `json:"destination"`
	// 同一会话的新请求会使旧请求失效
	SessionID string `json:"session_id,omitempty"`
}

type GetRoutesResponse = router.RouteSet

type SafeRouteServiceHandler interface {
	GetRoutes(context.Context, *connect.Request[GetRoutesRequest]) (*connect.Response[GetRoutesResponse], error)
}

// NewSafeRouteServiceHandler builds the HTTP handler of the service and
// returns the path to mount it on. Messages use the JSON codec.
func NewSafeRouteServiceHandler(svc SafeRouteServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	getRoutes := connect.NewUnaryHandler(
		SafeRouteServiceGetRoutesProcedure,
		svc.GetRoutes,
		opts...,
	)
	return "/" + SafeRouteServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SafeRouteServiceGetRoutesProcedure:
			getRoutes.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

type SafeRouteServiceClient struct {
	getRoutes *connect.Client[GetRoutesRequest, GetRoutesResponse]
}

func NewSafeRouteServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SafeRouteServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &SafeRouteServiceClient{
		getRoutes: connect.NewClient[GetRoutesRequest, GetRoutesResponse](
			httpClient,
			baseURL+SafeRouteServiceGetRoutesProcedure,
			opts...,
		),
	}
}

func (c *SafeRouteServiceClient) GetRoutes(ctx context.Context, req *connect.Request[GetRoutesRequest]) (*connect.Response[GetRoutesResponse], error) {
	return c.getRoutes.CallUnary(ctx, req)
}
