package bedrock

import "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"

// documentFromMap converts a JSON-schema-shaped map into a Bedrock document,
// used for tool input schemas and tool_use argument round-tripping.
func documentFromMap(m map[string]any) document.Interface {
	return document.NewLazyDocument(m)
}

// mapFromDocument decodes a Bedrock document (a tool_use block's Input) back
// into a plain map.
func mapFromDocument(d document.Interface) map[string]any {
	if d == nil {
		return nil
	}
	var out map[string]any
	if err := d.UnmarshalSmithyDocument(&out); err != nil {
		return nil
	}
	return out
}
