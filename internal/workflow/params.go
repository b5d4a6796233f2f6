package workflow

import (
	"math/rand/v2"
)

const maxSeed = int64(1_000_000_000_000_000) // 10^15, exclusive

// Bindings names the nodes the parameterizer targets. Ids that do not
// exist in the template are skipped silently; templates evolve faster
// than gateway configs and a stale binding must not break submissions.
type Bindings struct {
	PositiveNode string
	// SecondaryNode is a second text encoder fed by the secondary
	// prompt, for graphs with dual prompt paths. Optional.
	SecondaryNode string
	NegativeNode  string
	SamplerNode   string
}

// Missing reports configured binding ids absent from the template.
// Builds still proceed without them (tolerant patch); this feeds
// startup diagnostics only.
func (b Bindings) Missing(tpl Template) []string {
	var missing []string
	for _, id := range []string{b.PositiveNode, b.SecondaryNode, b.NegativeNode, b.SamplerNode} {
		if id == "" {
			continue
		}
		if _, ok := tpl[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// InputImage is an image payload submitted alongside the workflow. It
// rides next to the graph in the request body, never inside it.
type InputImage struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Request is a self-contained submission payload: a private copy of the
// template with caller values injected, plus any input images.
type Request struct {
	Workflow Template     `json:"workflow"`
	Images   []InputImage `json:"images,omitempty"`
	Seed     int64        `json:"-"`
}

// loaderFieldRewrites maps loader node kinds to the field name the
// engine API expects. Templates exported from the authoring UI carry a
// generic "filename" field instead.
var loaderFieldRewrites = map[string]string{
	"CheckpointLoaderSimple": "ckpt_name",
	"UNETLoader":             "unet_name",
	"CLIPLoader":             "clip_name",
	"DualCLIPLoader":         "clip_name1",
	"VAELoader":              "vae_name",
}

// Build produces a submission request from the template. The primary
// prompt lands in the positive node, the secondary prompt (primary when
// absent) in the secondary node, the negative node always gets an
// explicit empty string, and the sampler node gets a fresh random seed
// on every call. Overrides patch arbitrary node fields last, with the
// same tolerant semantics.
func Build(tpl Template, b Bindings, prompt, secondaryPrompt string, image string, overrides map[string]map[string]any) *Request {
	wf := tpl.Copy()

	if secondaryPrompt == "" {
		secondaryPrompt = prompt
	}
	wf.setField(b.PositiveNode, "text", prompt)
	wf.setField(b.SecondaryNode, "text", secondaryPrompt)
	wf.setField(b.NegativeNode, "text", "")

	wf.normalizeLoaders()

	seed := rand.Int64N(maxSeed)
	wf.setSeed(b.SamplerNode, seed)

	for nodeID, fields := range overrides {
		for field, value := range fields {
			wf.setField(nodeID, field, value)
		}
	}

	req := &Request{Workflow: wf, Seed: seed}
	if image != "" {
		req.Images = []InputImage{{Name: "input.png", Image: image}}
	}
	return req
}

// setField patches one input field on one node. Missing nodes are a
// no-op.
func (t Template) setField(nodeID, field string, value any) {
	node, ok := t[nodeID]
	if !ok {
		return
	}
	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}
	node.Inputs[field] = value
	t[nodeID] = node
}

// setSeed writes the seed under whichever field name the sampler node
// already uses.
func (t Template) setSeed(nodeID string, seed int64) {
	node, ok := t[nodeID]
	if !ok {
		return
	}
	field := "seed"
	if _, has := node.Inputs["noise_seed"]; has {
		field = "noise_seed"
	}
	t.setField(nodeID, field, seed)
}

// normalizeLoaders rewrites UI-authoring "filename" fields on loader
// nodes to the engine's API field names. Nodes without the UI field are
// untouched, so running this over an already-normalized template is a
// no-op.
func (t Template) normalizeLoaders() {
	for id, node := range t {
		target, ok := loaderFieldRewrites[node.ClassType]
		if !ok {
			continue
		}
		value, has := node.Inputs["filename"]
		if !has {
			continue
		}
		node.Inputs[target] = value
		delete(node.Inputs, "filename")
		t[id] = node
	}
}
