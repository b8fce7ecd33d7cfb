package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const service = "traceability.v1.TraceabilityService"

func main() {
	conn, err := grpc.NewClient("localhost:9090",
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Тест 1: состояние историана
	fmt.Println("=== Test 1: Health ===")
	testHealth(ctx, conn)

	// Тест 2: нисходящая генеалогия
	fmt.Println("\n=== Test 2: ResolveDescendant ===")
	testResolveDescendant(ctx, conn)

	// Тест 3: Ошибки валидации
	fmt.Println("\n=== Test 3: Validation Errors ===")
	testValidationErrors(ctx, conn)
}

func testHealth(ctx context.Context, conn *grpc.ClientConn) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		log.Printf("Health check failed: %v", err)
		return
	}
	fmt.Printf("Historian status: %s\n", resp.GetStatus())
}

func testResolveDescendant(ctx context.Context, conn *grpc.ClientConn) {
	req, err := structpb.NewStruct(map[string]any{
		"fromDT":           time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339),
		"toDT":             time.Now().UTC().Format(time.RFC3339),
		"includeRework":    false,
		"targetIdentifier": "DM-000123",
		"stations": []any{map[string]any{
			"machine":           "M1",
			"station":           "OP10",
			"identifierChannel": "OP10.DataMatrix",
			"triggerChannel":    "OP10.CycleTrigger",
			"auxiliaryChannels": map[string]any{"OP10.Torque": ""},
		}},
	})
	if err != nil {
		log.Printf("Failed to build request: %v", err)
		return
	}

	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+service+"/ResolveDescendant", req, resp); err != nil {
		if st, ok := status.FromError(err); ok {
			log.Printf("gRPC error: %s (code: %s)", st.Message(), st.Code())
		} else {
			log.Printf("Error: %v", err)
		}
		return
	}

	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
	if err != nil {
		log.Printf("Failed to render response: %v", err)
		return
	}
	fmt.Println(string(out))
}

func testValidationErrors(ctx context.Context, conn *grpc.ClientConn) {
	// Тест пустого запроса
	fmt.Println("Testing empty request...")
	err := conn.Invoke(ctx, "/"+service+"/ResolveAscendant", &structpb.Struct{}, new(structpb.Struct))
	if st, ok := status.FromError(err); ok && err != nil {
		fmt.Printf("Expected error: %s (code: %s)\n", st.Message(), st.Code())
	}

	// Тест невалидного формата времени
	fmt.Println("Testing invalid time format...")
	req, _ := structpb.NewStruct(map[string]any{"dataMatrix": "DM-1", "fromDT": "invalid-date"})
	err = conn.Invoke(ctx, "/"+service+"/LookupPosition", req, new(structpb.Struct))
	if st, ok := status.FromError(err); ok && err != nil {
		fmt.Printf("Expected error: %s (code: %s)\n", st.Message(), st.Code())
	}
}
