package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/archmap/archmap-backend/internal/types"
)

// Validation reason codes returned to callers. These are stable strings:
// producers key retry behavior off them.
const (
	CodeFromRequired       = "FROM_REQUIRED"
	CodeToRequired         = "TO_REQUIRED"
	CodeSourceInvalid      = "SOURCE_INVALID"
	CodeConfidenceInvalid  = "CONFIDENCE_INVALID"
	CodeConfidenceRequired = "CONFIDENCE_REQUIRED"
	CodeEvidenceRequired   = "EVIDENCE_REQUIRED"
	CodeURNRequired        = "URN_REQUIRED"
	CodeMalformed          = "PAYLOAD_MALFORMED"
)

// Review tags a producer may attach to a relation payload.
const (
	ReviewTagLowConfidence = "LOW_CONFIDENCE"
	ReviewTagNormal        = "NORMAL"
)

type ValidationError struct {
	Code  string
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Field)
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// Parsed is the tagged variant a raw change-request payload resolves to.
// Nothing outside this package touches payload JSON directly.
type Parsed interface {
	isPayload()
}

// RelationFields is the normalized body shared by upsert and delete payloads.
type RelationFields struct {
	FromURN      string   `json:"fromId"`
	ToURN        string   `json:"toId"`
	RelationType string   `json:"type"`
	Source       string   `json:"source"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Evidence     string   `json:"evidence,omitempty"`
	ScoreVersion string   `json:"scoreVersion,omitempty"`
	ReviewTag    string   `json:"reviewTag,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

type RelationUpsertPayload struct{ RelationFields }

type RelationDeletePayload struct{ RelationFields }

type ObjectPatchPayload struct {
	URN       string                 `json:"urn"`
	Name      *string                `json:"name,omitempty"`
	Visible   *bool                  `json:"visible,omitempty"`
	ParentURN *string                `json:"parentUrn,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (RelationUpsertPayload) isPayload() {}
func (RelationDeletePayload) isPayload() {}
func (ObjectPatchPayload) isPayload()    {}

// Legacy producers still emit transport-flavored relation types; they map
// onto the canonical set here. Anything unrecognized falls back to depend_on.
var legacyTypeSynonyms = map[string]string{
	"http":       types.RelationCall,
	"https":      types.RelationCall,
	"rest":       types.RelationCall,
	"grpc":       types.RelationCall,
	"rpc":        types.RelationCall,
	"sql":        types.RelationRead,
	"jdbc":       types.RelationRead,
	"kafka":      types.RelationProduce,
	"queue":      types.RelationProduce,
	"mq":         types.RelationProduce,
	"uses":       types.RelationDependOn,
	"import":     types.RelationDependOn,
	"dependency": types.RelationDependOn,
}

var canonicalTypes = map[string]bool{
	types.RelationCall:     true,
	types.RelationExpose:   true,
	types.RelationRead:     true,
	types.RelationWrite:    true,
	types.RelationProduce:  true,
	types.RelationConsume:  true,
	types.RelationDependOn: true,
}

var validSources = map[string]bool{
	types.SourceManual:    true,
	types.SourceScan:      true,
	types.SourceInference: true,
	types.SourceRollup:    true,
}

// NormalizeRelationType maps a raw type string onto the canonical set.
func NormalizeRelationType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if canonicalTypes[t] {
		return t
	}
	if mapped, ok := legacyTypeSynonyms[t]; ok {
		return mapped
	}
	return types.RelationDependOn
}

// Parse validates raw payload bytes for the given request type and returns
// the tagged variant. defaultSource fills a missing source field ("manual"
// for interactive producers, "inference" for the analysis pipeline). The
// same parse runs at create time and again at approval time; a stored
// payload is never assumed valid.
func Parse(requestType string, raw []byte, defaultSource string) (Parsed, error) {
	switch requestType {
	case types.RequestRelationUpsert:
		fields, err := parseRelation(raw, defaultSource)
		if err != nil {
			return nil, err
		}
		return RelationUpsertPayload{*fields}, nil
	case types.RequestRelationDelete:
		fields, err := parseRelation(raw, defaultSource)
		if err != nil {
			return nil, err
		}
		return RelationDeletePayload{*fields}, nil
	case types.RequestObjectPatch:
		return parseObjectPatch(raw)
	default:
		return nil, fmt.Errorf("unknown request type %q", requestType)
	}
}

func parseRelation(raw []byte, defaultSource string) (*RelationFields, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Code: CodeMalformed}
	}

	out := &RelationFields{}

	out.FromURN = strings.TrimSpace(stringField(m, "fromId"))
	if out.FromURN == "" {
		return nil, &ValidationError{Code: CodeFromRequired, Field: "fromId"}
	}
	out.ToURN = strings.TrimSpace(stringField(m, "toId"))
	if out.ToURN == "" {
		return nil, &ValidationError{Code: CodeToRequired, Field: "toId"}
	}

	out.RelationType = NormalizeRelationType(stringField(m, "type"))

	src := strings.ToLower(strings.TrimSpace(stringField(m, "source")))
	if src == "" {
		src = defaultSource
		if src == "" {
			src = types.SourceManual
		}
	}
	if !validSources[src] {
		return nil, &ValidationError{Code: CodeSourceInvalid, Field: "source"}
	}
	out.Source = src

	if rawConf, present := m["confidence"]; present && rawConf != nil {
		conf, ok := rawConf.(float64)
		if !ok || math.IsNaN(conf) || math.IsInf(conf, 0) || conf < 0 || conf > 1 {
			return nil, &ValidationError{Code: CodeConfidenceInvalid, Field: "confidence"}
		}
		out.Confidence = &conf
	}

	automated := src == types.SourceScan || src == types.SourceInference
	if automated && out.Confidence == nil {
		return nil, &ValidationError{Code: CodeConfidenceRequired, Field: "confidence"}
	}

	out.Evidence = strings.TrimSpace(stringField(m, "evidence"))
	if automated && out.Evidence == "" {
		return nil, &ValidationError{Code: CodeEvidenceRequired, Field: "evidence"}
	}

	out.ScoreVersion = strings.TrimSpace(stringField(m, "scoreVersion"))
	out.ReviewTag = normalizeReviewTag(stringField(m, "reviewTag"))
	out.Tags = stringSliceField(m, "tags")

	return out, nil
}

func parseObjectPatch(raw []byte) (Parsed, error) {
	var p ObjectPatchPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Code: CodeMalformed}
	}
	p.URN = strings.TrimSpace(p.URN)
	if p.URN == "" {
		return nil, &ValidationError{Code: CodeURNRequired, Field: "urn"}
	}
	return p, nil
}

// Marshal renders a parsed payload back to its normalized JSON form for
// storage, so the approval-time re-parse sees canonical field values.
func Marshal(p Parsed) ([]byte, error) {
	switch v := p.(type) {
	case RelationUpsertPayload:
		return json.Marshal(v.RelationFields)
	case RelationDeletePayload:
		return json.Marshal(v.RelationFields)
	case ObjectPatchPayload:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown payload variant %T", p)
	}
}

func normalizeReviewTag(raw string) string {
	tag := strings.ToUpper(strings.TrimSpace(raw))
	if tag == ReviewTagLowConfidence {
		return tag
	}
	return ReviewTagNormal
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(m map[string]interface{}, key string) []string {
	rawList, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range rawList {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
