package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls ServiceName over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func scenarioRequest(scenario string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"scenario": structpb.NewStringValue(scenario),
	}}
}

func (c *Client) Run(ctx context.Context, scenario string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Run", scenarioRequest(scenario), opts...)
}

func (c *Client) Reset(ctx context.Context, scenario string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reset", scenarioRequest(scenario), opts...)
}

func (c *Client) CompleteStep(ctx context.Context, scenario string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CompleteStep", scenarioRequest(scenario), opts...)
}

func (c *Client) GetSnapshot(ctx context.Context, scenario string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSnapshot", scenarioRequest(scenario), opts...)
}

// Configure sends config as the JSON-shaped settings patch.
func (c *Client) Configure(ctx context.Context, scenario string, config map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	cfg, err := structpb.NewStruct(config)
	if err != nil {
		return nil, err
	}
	req := scenarioRequest(scenario)
	req.Fields["config"] = structpb.NewStructValue(cfg)
	return c.invoke(ctx, "Configure", req, opts...)
}

func (c *Client) ToggleServer(ctx context.Context, server string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req := scenarioRequest("load-balancer")
	req.Fields["server"] = structpb.NewStringValue(server)
	return c.invoke(ctx, "ToggleServer", req, opts...)
}
