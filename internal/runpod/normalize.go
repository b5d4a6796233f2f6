package runpod

import (
	"bytes"
	"encoding/json"
)

// Result is the gateway's normalized view of a finished job, flattened
// from whichever output shape the worker happened to produce.
type Result struct {
	Success     bool      `json:"success"`
	RemoteJobID string    `json:"remote_job_id"`
	Message     string    `json:"message"`
	Images      []string  `json:"images"`
	Status      JobStatus `json:"status,omitempty"`
}

// imageItem tolerates the field names different worker versions use for
// inline image payloads. Raw strings are handled before decoding.
type imageItem struct {
	Data   string `json:"data"`
	Image  string `json:"image"`
	Base64 string `json:"base64"`
}

// nodeOutput is the per-node mapping shape: node id -> {images: [...]}.
type nodeOutput struct {
	Images []json.RawMessage `json:"images"`
}

// Normalize flattens a terminal job state into a Result. Worker
// versions differ in where they put images — a flat "images" list, a
// single "image" field, or a per-node output mapping — so all three
// shapes are searched and their finds concatenated in discovery order.
func Normalize(state *JobState) *Result {
	res := &Result{
		Success:     state.Status == StatusCompleted,
		RemoteJobID: state.ID,
		Status:      state.Status,
		Images:      []string{},
	}
	if state.Error != "" {
		res.Message = state.Error
	} else if res.Success {
		res.Message = "workflow completed"
	}
	if len(state.Output) == 0 {
		return res
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(state.Output, &top); err != nil {
		return res
	}

	// Shape 1: flat images list at the top level.
	if raw, ok := top["images"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				if img, ok := decodeImage(item); ok {
					res.Images = append(res.Images, img)
				}
			}
		}
	}

	// Shape 2: single image field.
	if raw, ok := top["image"]; ok {
		if img, ok := decodeImage(raw); ok {
			res.Images = append(res.Images, img)
		}
	}

	// Shape 3: per-node output mapping, walked in document order so the
	// concatenation is stable.
	for _, key := range orderedKeys(state.Output) {
		if key == "images" || key == "image" {
			continue
		}
		var out nodeOutput
		if err := json.Unmarshal(top[key], &out); err != nil {
			continue
		}
		for _, item := range out.Images {
			if img, ok := decodeImage(item); ok {
				res.Images = append(res.Images, img)
			}
		}
	}

	if raw, ok := top["message"]; ok && res.Message == "" {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			res.Message = msg
		}
	}
	return res
}

// orderedKeys returns the top-level object keys in document order,
// which encoding/json's map decoding throws away.
func orderedKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

// decodeImage accepts either a raw base64 string or an object carrying
// the payload under data, image, or base64.
func decodeImage(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var item imageItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return "", false
	}
	switch {
	case item.Data != "":
		return item.Data, true
	case item.Image != "":
		return item.Image, true
	case item.Base64 != "":
		return item.Base64, true
	}
	return "", false
}
