package main

import (
	"connectrpc.com/connect"
	"github.com/goccy/go-json"
)

// jsonCodec replaces connect's protojson codec so that plain Go messages
// can travel as application/json.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
