package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/saferoute/cache"
	"git.fiblab.net/sim/saferoute/router"
)

const (
	SESSION_TTL  = 30 * time.Minute
	MAX_SESSIONS = 100_000
)

type SafeRouteServer struct {
	router *router.Router

	// 会话 -> epoch，同一会话的新请求使旧请求的结果作废
	sessions  *cache.Cache[*router.Epoch]
	sessionMu sync.Mutex

	// 接口开启true或关闭false（重新加载配置期间关闭）
	ok bool
	// 条件变量
	cond *sync.Cond
}

func NewSafeRouteServer(r *router.Router) *SafeRouteServer {
	return &SafeRouteServer{
		router: r,
		sessions: cache.New[*router.Epoch](SESSION_TTL,
			cache.WithMaxSize(MAX_SESSIONS),
			cache.WithName("session"),
			cache.WithJanitor(time.Minute),
		),
		ok:   true,
		cond: sync.NewCond(&sync.Mutex{}),
	}
}

// token issues a new generation for the session. Requests without a session
// are never superseded.
func (s *SafeRouteServer) token(session string) router.Token {
	if session == "" {
		return router.Token{}
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	epoch, ok := s.sessions.Get(session)
	if !ok {
		epoch = &router.Epoch{}
	}
	// 刷新过期时间
	s.sessions.Set(session, epoch)
	return epoch.Next()
}

func (s *SafeRouteServer) GetRoutes(
	ctx context.Context,
	req *connect.Request[GetRoutesRequest],
) (*connect.Response[GetRoutesResponse], error) {
	// 暂停-恢复机制
	s.cond.L.Lock()
	for !s.ok {
		// 暂停中
		s.cond.Wait()
	}
	r := s.router
	s.cond.L.Unlock()

	in := req.Msg
	tok := s.token(in.SessionID)
	log.Debugf("search routes from %v to %v", in.Origin, in.Destination)
	rs, err := r.Route(ctx, router.Request{Origin: in.Origin, Destination: in.Destination}, tok)
	if err != nil {
		return nil, connectError(err)
	}
	res := connect.NewResponse(rs)
	if rs.Cached {
		res.Header().Set(CacheHeader, "hit")
	} else {
		res.Header().Set(CacheHeader, "miss")
	}
	return res, nil
}

// connectError converts a routing error. Only the user-facing message is
// sent; the cause stays in the logs.
func connectError(err error) *connect.Error {
	var e *router.Error
	if !errors.As(err, &e) {
		e = router.ErrInternal
	}
	code := connect.CodeInternal
	switch e.Code {
	case router.InvalidCoordinates:
		code = connect.CodeInvalidArgument
	case router.DestinationOutOfRange:
		code = connect.CodeOutOfRange
	case router.NoRouteFound, router.NoNearbyRoad:
		code = connect.CodeNotFound
	case router.GraphEmpty:
		code = connect.CodeFailedPrecondition
	case router.StaleRequest:
		code = connect.CodeCanceled
	}
	msg := e.Message
	if e.Code == router.InternalError {
		msg = router.ErrInternal.Message
	}
	ce := connect.NewError(code, errors.New(msg))
	ce.Meta().Set(ErrorCodeHeader, string(e.Code))
	return ce
}

// Reload swaps the router. Requests arriving meanwhile wait; requests
// already running finish on the old router.
func (s *SafeRouteServer) Reload(r *router.Router) {
	s.Suspend()
	s.cond.L.Lock()
	old := s.router
	s.router = r
	s.cond.L.Unlock()
	s.Resume()
	old.Close()
}

// 暂停导航服务
func (s *SafeRouteServer) Suspend() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = false
}

// 恢复导航服务
func (s *SafeRouteServer) Resume() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = true
	s.cond.Broadcast()
}

// 关闭导航服务
func (s *SafeRouteServer) Close() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.router.Close()
	s.sessions.Close()
}
