package grpcPack

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/shared"
)

// UnaryErrorInterceptor converts errors and recovered panics into gRPC status errors
func UnaryErrorInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, status.Error(codes.Internal, kvErr.RecoverError(r).Error())
		}
	}()

	resp, err = handler(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}
	return resp, nil
}

// StreamErrorInterceptor is the streaming counterpart of UnaryErrorInterceptor
func StreamErrorInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Error(codes.Internal, kvErr.RecoverError(r).Error())
		}
	}()

	return convertError(handler(srv, ss))
}

// UnaryLoggingInterceptor logs each call at debug level
func UnaryLoggingInterceptor(logger *shared.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("%s %s %s", info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

// convertError converts a KVError to a gRPC status error
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case kvErr.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case kvErr.IsInvalidArgument(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case kvErr.IsConfiguration(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case kvErr.IsCorruption(err):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
