package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Resource is a collection exposed under /api.
type Resource string

const (
	ResourceMemories      Resource = "memories"
	ResourceEntities      Resource = "entities"
	ResourceDocuments     Resource = "documents"
	ResourceCodeArtifacts Resource = "code-artifacts"
	ResourceProjects      Resource = "projects"
)

// Resources lists the known collections in display order.
var Resources = []Resource{
	ResourceMemories,
	ResourceEntities,
	ResourceDocuments,
	ResourceCodeArtifacts,
	ResourceProjects,
}

var resourceAliases = map[string]Resource{
	"memory":        ResourceMemories,
	"entity":        ResourceEntities,
	"document":      ResourceDocuments,
	"docs":          ResourceDocuments,
	"code-artifact": ResourceCodeArtifacts,
	"artifacts":     ResourceCodeArtifacts,
	"code":          ResourceCodeArtifacts,
	"project":       ResourceProjects,
}

// ParseResource accepts a collection name or a singular alias.
func ParseResource(s string) (Resource, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, r := range Resources {
		if string(r) == name {
			return r, nil
		}
	}
	if r, ok := resourceAliases[name]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown resource %q (want one of %s)", s, strings.Join(ResourceNames(), ", "))
}

// ResourceNames returns the collection names, for help text and completion.
func ResourceNames() []string {
	names := make([]string, len(Resources))
	for i, r := range Resources {
		names[i] = string(r)
	}
	return names
}

// Record is one resource object as returned by the server. The API client
// does not model resource schemas.
type Record map[string]any

// ID returns the record's "id" field as a string.
func (r Record) ID() string {
	return r.String("id")
}

// String returns field key formatted as text, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListOptions are the paging and filter parameters of a list call.
type ListOptions struct {
	Limit     int
	Offset    int
	ProjectID string
}

// Graph is the relationship graph of a project.
type Graph struct {
	Nodes []Record `json:"nodes"`
	Edges []Record `json:"edges"`
}

// decodeList accepts a bare array or an {"items": [...]} envelope.
func decodeList(data []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return []Record{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode list response: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Items []Record `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	if envelope.Items == nil {
		return []Record{}, nil
	}
	return envelope.Items, nil
}
