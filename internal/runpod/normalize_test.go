package runpod

import (
	"encoding/json"
	"reflect"
	"testing"
)

func terminalState(output string) *JobState {
	return &JobState{
		ID:     "remote-1",
		Status: StatusCompleted,
		Output: json.RawMessage(output),
	}
}

func TestNormalizeFlatStringList(t *testing.T) {
	res := Normalize(terminalState(`{"images": ["aaa", "bbb", "ccc"]}`))
	if !res.Success {
		t.Fatal("expected success")
	}
	if !reflect.DeepEqual(res.Images, []string{"aaa", "bbb", "ccc"}) {
		t.Fatalf("wrong images: %v", res.Images)
	}
}

func TestNormalizeObjectItems(t *testing.T) {
	res := Normalize(terminalState(`{"images": [{"data": "aaa"}, {"image": "bbb"}, {"base64": "ccc"}]}`))
	if !reflect.DeepEqual(res.Images, []string{"aaa", "bbb", "ccc"}) {
		t.Fatalf("wrong images: %v", res.Images)
	}
}

func TestNormalizeSingleImageField(t *testing.T) {
	res := Normalize(terminalState(`{"image": "solo"}`))
	if !reflect.DeepEqual(res.Images, []string{"solo"}) {
		t.Fatalf("wrong images: %v", res.Images)
	}
}

func TestNormalizePerNodeMapping(t *testing.T) {
	res := Normalize(terminalState(`{
		"9": {"images": ["n9-a", "n9-b"]},
		"12": {"images": [{"data": "n12-a"}]}
	}`))
	if !reflect.DeepEqual(res.Images, []string{"n9-a", "n9-b", "n12-a"}) {
		t.Fatalf("wrong images or order: %v", res.Images)
	}
}

func TestNormalizeConcatenatesShapesInOrder(t *testing.T) {
	res := Normalize(terminalState(`{
		"images": ["flat"],
		"image": "single",
		"9": {"images": ["node"]}
	}`))
	if !reflect.DeepEqual(res.Images, []string{"flat", "single", "node"}) {
		t.Fatalf("wrong concatenation: %v", res.Images)
	}
}

func TestNormalizeSameCountAcrossShapes(t *testing.T) {
	shapes := []string{
		`{"images": ["a", "b"]}`,
		`{"images": [{"data": "a"}, {"data": "b"}]}`,
		`{"9": {"images": ["a", "b"]}}`,
	}
	for _, shape := range shapes {
		res := Normalize(terminalState(shape))
		if !reflect.DeepEqual(res.Images, []string{"a", "b"}) {
			t.Fatalf("shape %s: wrong images %v", shape, res.Images)
		}
	}
}

func TestNormalizeEmptyAndGarbageOutput(t *testing.T) {
	res := Normalize(&JobState{ID: "r", Status: StatusCompleted})
	if len(res.Images) != 0 || !res.Success {
		t.Fatalf("unexpected result for missing output: %+v", res)
	}

	res = Normalize(terminalState(`"just a string"`))
	if len(res.Images) != 0 {
		t.Fatalf("expected no images from non-object output: %v", res.Images)
	}

	res = Normalize(terminalState(`{"images": "not-a-list", "prompt": 42}`))
	if len(res.Images) != 0 {
		t.Fatalf("expected no images from malformed list: %v", res.Images)
	}
}

func TestNormalizeFailureCarriesError(t *testing.T) {
	res := Normalize(&JobState{ID: "r", Status: StatusFailed, Error: "OOM"})
	if res.Success {
		t.Fatal("failed job must not be success")
	}
	if res.Message != "OOM" {
		t.Fatalf("error not carried: %q", res.Message)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status not carried: %q", res.Status)
	}
}

func TestNormalizeMessageField(t *testing.T) {
	res := Normalize(&JobState{ID: "r", Status: StatusInProgress, Output: json.RawMessage(`{"message": "still warming up"}`)})
	if res.Message != "still warming up" {
		t.Fatalf("message not extracted: %q", res.Message)
	}
}
