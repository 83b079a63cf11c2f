// Package control is the gRPC control plane of the simulators. Messages are
// google.protobuf.Struct documents shaped like the REST API's JSON bodies.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sysviz.v1.SimulatorService"

// SimulatorServiceServer is the server API of ServiceName. Every request
// carries a "scenario" field; Configure also carries a "config" object and
// ToggleServer a "server" id.
type SimulatorServiceServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteStep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Configure(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleServer(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SimulatorService implements SimulatorServiceServer over a registry.
type SimulatorService struct {
	registry *sim.Registry
	log      logging.Logger
}

func NewSimulatorService(registry *sim.Registry, log logging.Logger) *SimulatorService {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulatorService{registry: registry, log: log}
}

// logger prefers the per-request logger installed by the interceptor.
func (s *SimulatorService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func (s *SimulatorService) simulator(req *structpb.Struct) (sim.Simulator, error) {
	name := req.GetFields()["scenario"].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("%w: scenario is required", ErrInvalidRequest)
	}
	return s.registry.Get(name)
}

func (s *SimulatorService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sm, err := s.simulator(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	accepted := sm.Run(ctx)
	return acceptedStruct(accepted, sm.Snapshot())
}

func (s *SimulatorService) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sm, err := s.simulator(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	sm.Reset(ctx)
	return snapshotStruct(sm.Snapshot())
}

func (s *SimulatorService) CompleteStep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sm, err := s.simulator(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	accepted := sm.StepComplete(ctx)
	return acceptedStruct(accepted, sm.Snapshot())
}

func (s *SimulatorService) Configure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sm, err := s.simulator(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	cfg := req.GetFields()["config"].GetStructValue()
	if cfg == nil {
		return nil, ToStatusError(fmt.Errorf("%w: config object is required", ErrInvalidRequest))
	}
	patch, err := cfg.MarshalJSON()
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if err := sm.Configure(ctx, patch); err != nil {
		s.logger(ctx).Warn(ctx, "configure rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return snapshotStruct(sm.Snapshot())
}

func (s *SimulatorService) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sm, err := s.simulator(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return snapshotStruct(sm.Snapshot())
}

func (s *SimulatorService) ToggleServer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["server"].GetStringValue()
	healthy, err := s.registry.LoadBalancer().ToggleServer(ctx, model.ServerID(id))
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := structpb.NewStruct(map[string]interface{}{"server": id, "healthy": healthy})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// snapshotStruct converts a snapshot through its JSON form so both
// transports expose identical field names.
func snapshotStruct(snap sim.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func acceptedStruct(accepted bool, snap sim.Snapshot) (*structpb.Struct, error) {
	body, err := snapshotStruct(snap)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"accepted": structpb.NewBoolValue(accepted),
		"snapshot": structpb.NewStructValue(body),
	}}, nil
}

// RegisterSimulatorServiceServer registers srv on s.
func RegisterSimulatorServiceServer(s grpc.ServiceRegistrar, srv SimulatorServiceServer) {
	s.RegisterService(&SimulatorService_ServiceDesc, srv)
}

func unaryHandler(name string, call func(SimulatorServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SimulatorServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(SimulatorServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SimulatorService_ServiceDesc describes ServiceName for grpc.Server.
var SimulatorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Run", SimulatorServiceServer.Run),
		unaryHandler("Reset", SimulatorServiceServer.Reset),
		unaryHandler("CompleteStep", SimulatorServiceServer.CompleteStep),
		unaryHandler("Configure", SimulatorServiceServer.Configure),
		unaryHandler("GetSnapshot", SimulatorServiceServer.GetSnapshot),
		unaryHandler("ToggleServer", SimulatorServiceServer.ToggleServer),
	},
	Streams: []grpc.StreamDesc{},
}
