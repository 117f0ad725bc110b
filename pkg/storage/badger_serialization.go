package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/orneryd/pathwaygraph/pkg/convert"
)

// serializableNode is the JSON-serializable form of a Node.
type serializableNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	CreatedAt  int64          `json:"createdAt"`
}

// serializableEdge is the JSON-serializable form of an Edge.
type serializableEdge struct {
	ID         string         `json:"id"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  int64          `json:"createdAt"`
}

// encodeNode serializes a Node to JSON.
func encodeNode(n *Node) ([]byte, error) {
	return json.Marshal(serializableNode{
		ID:         string(n.ID),
		Labels:     n.Labels,
		Properties: preserveFloats(n.Properties),
		CreatedAt:  n.CreatedAt.Unix(),
	})
}

// decodeNode deserializes a Node from JSON. Numbers written without a
// decimal point come back as int64, all others as float64.
func decodeNode(data []byte) (*Node, error) {
	var sn serializableNode
	if err := unmarshalNumbers(data, &sn); err != nil {
		return nil, err
	}
	return &Node{
		ID:         NodeID(sn.ID),
		Labels:     sn.Labels,
		Properties: convert.NormalizeProperties(sn.Properties),
		CreatedAt:  unixToTime(sn.CreatedAt),
	}, nil
}

// encodeEdge serializes an Edge to JSON.
func encodeEdge(e *Edge) ([]byte, error) {
	return json.Marshal(serializableEdge{
		ID:         string(e.ID),
		StartNode:  string(e.StartNode),
		EndNode:    string(e.EndNode),
		Type:       e.Type,
		Properties: preserveFloats(e.Properties),
		CreatedAt:  e.CreatedAt.Unix(),
	})
}

// decodeEdge deserializes an Edge from JSON.
func decodeEdge(data []byte) (*Edge, error) {
	var se serializableEdge
	if err := unmarshalNumbers(data, &se); err != nil {
		return nil, err
	}
	return &Edge{
		ID:         EdgeID(se.ID),
		StartNode:  NodeID(se.StartNode),
		EndNode:    NodeID(se.EndNode),
		Type:       se.Type,
		Properties: convert.NormalizeProperties(se.Properties),
		CreatedAt:  unixToTime(se.CreatedAt),
	}, nil
}

// preserveFloats returns props with integral float64 values written as
// numbers carrying a decimal point ("3.0"), so they decode as floats
// instead of int64. props itself is not modified.
func preserveFloats(props map[string]any) map[string]any {
	var out map[string]any
	for k, v := range props {
		f, ok := v.(float64)
		// encoding/json switches to exponent form from 1e21, which already
		// decodes as a float.
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1e21 {
			continue
		}
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if strings.Contains(s, ".") {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(props))
			for k2, v2 := range props {
				out[k2] = v2
			}
		}
		out[k] = json.Number(s + ".0")
	}
	if out == nil {
		return props
	}
	return out
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// unixToTime converts Unix timestamp to time.Time.
func unixToTime(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
