package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-spiro/internal/models"
)

// FromStructRequest maps a gRPC Struct document into an AnalysisRequest.
func FromStructRequest(req *structpb.Struct) (models.AnalysisRequest, error) {
	if req == nil {
		return models.AnalysisRequest{}, fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(req)
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("encode request: %w", err)
	}
	var out models.AnalysisRequest
	if err := json.Unmarshal(data, &out); err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return out, nil
}

// ToStructRequest is the inverse of FromStructRequest, used by clients.
func ToStructRequest(req models.AnalysisRequest) (*structpb.Struct, error) {
	return toStruct(req)
}

// ToStructResult converts a domain result into its gRPC Struct document.
func ToStructResult(res models.AnalysisResult) (*structpb.Struct, error) {
	return toStruct(res)
}

// FromStructResult decodes a Struct document produced by ToStructResult.
func FromStructResult(doc *structpb.Struct) (models.AnalysisResult, error) {
	if doc == nil {
		return models.AnalysisResult{}, fmt.Errorf("result is nil")
	}
	data, err := protojson.Marshal(doc)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("encode result: %w", err)
	}
	var out models.AnalysisResult
	if err := json.Unmarshal(data, &out); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	doc := &structpb.Struct{}
	if err := protojson.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("convert %T to struct: %w", v, err)
	}
	return doc, nil
}
