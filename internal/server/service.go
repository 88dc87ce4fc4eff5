// Package server exposes the extraction workflow and the report queries over
// gRPC. Messages are google.protobuf.Struct values carrying the JSON shape of
// the workflow responses.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "labreports.v1.LabReportsService"

// Method names of the service.
const (
	MethodSubmit             = "Submit"
	MethodResumeWithPassword = "ResumeWithPassword"
	MethodResumeWithDate     = "ResumeWithDate"
	MethodGetStatus          = "GetStatus"
	MethodListReports        = "ListReports"
	MethodGetReport          = "GetReport"
	MethodListTrends         = "ListTrends"
	MethodBiomarkerHistory   = "BiomarkerHistory"
	MethodExportTrends       = "ExportTrends"
)

// LabReportsServer is the server API for the lab reports service.
type LabReportsServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeWithPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeWithDate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReports(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTrends(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BiomarkerHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportTrends(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(LabReportsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LabReportsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LabReportsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the gRPC path of a method, e.g. /labreports.v1.LabReportsService/Submit.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ServiceDesc is the grpc.ServiceDesc for LabReportsService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LabReportsServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodSubmit, LabReportsServer.Submit),
		unaryMethod(MethodResumeWithPassword, LabReportsServer.ResumeWithPassword),
		unaryMethod(MethodResumeWithDate, LabReportsServer.ResumeWithDate),
		unaryMethod(MethodGetStatus, LabReportsServer.GetStatus),
		unaryMethod(MethodListReports, LabReportsServer.ListReports),
		unaryMethod(MethodGetReport, LabReportsServer.GetReport),
		unaryMethod(MethodListTrends, LabReportsServer.ListTrends),
		unaryMethod(MethodBiomarkerHistory, LabReportsServer.BiomarkerHistory),
		unaryMethod(MethodExportTrends, LabReportsServer.ExportTrends),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labreports/v1/labreports.proto",
}

func RegisterLabReportsServer(s grpc.ServiceRegistrar, srv LabReportsServer) {
	s.RegisterService(&ServiceDesc, srv)
}
