package qdrant

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

func convertDistance(d Distance) qdrant.Distance {
	switch d {
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	case DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func convertToQdrantPoint(p *Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value)
	for k, v := range p.Payload {
		payload[k] = convertToQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		// Fallback to string representation
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      extractPointID(p.Id),
			Vector:  extractVectorOutput(p.Vectors),
			Payload: extractPayload(p.Payload),
		},
		Score: p.Score,
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}

	result := make(map[string]interface{})
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func convertToQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	// A condition with neither a match nor a range converts to nil and
	// is dropped rather than handed to the backend.
	filter := &qdrant.Filter{}

	for _, cond := range f.Must {
		if c := convertToQdrantCondition(cond); c != nil {
			filter.Must = append(filter.Must, c)
		}
	}
	for _, cond := range f.Should {
		if c := convertToQdrantCondition(cond); c != nil {
			filter.Should = append(filter.Should, c)
		}
	}
	for _, cond := range f.MustNot {
		if c := convertToQdrantCondition(cond); c != nil {
			filter.MustNot = append(filter.MustNot, c)
		}
	}

	return filter
}

func convertToQdrantCondition(c Condition) *qdrant.Condition {
	if c.Match != nil {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: convertToQdrantMatch(c.Match),
					},
				},
			},
		}
	}

	if c.Range != nil {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Range: &qdrant.Range{
						Gte: c.Range.Gte,
						Lte: c.Range.Lte,
						Gt:  c.Range.Gt,
						Lt:  c.Range.Lt,
					},
				},
			},
		}
	}

	return nil
}

func convertToQdrantMatch(match interface{}) *qdrant.Match_Keyword {
	switch v := match.(type) {
	case string:
		return &qdrant.Match_Keyword{Keyword: v}
	default:
		return &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}
	}
}
