package openapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const componentPrefix = "#/components/schemas/"

// components collects named schemas. Identical schemas share one entry, so a
// second field resolving the same option list gets the first field's name.
type components struct {
	schemas map[string]any
	byHash  map[string]string
}

func newComponents() *components {
	return &components{schemas: map[string]any{}, byHash: map[string]string{}}
}

// add stores schema under a name derived from hint and returns its $ref.
func (c *components) add(hint string, schema any) (string, error) {
	hash, err := digest(schema)
	if err != nil {
		return "", err
	}
	if name, ok := c.byHash[hash]; ok {
		return componentPrefix + name, nil
	}
	name := c.uniqueName(hint)
	c.schemas[name] = schema
	c.byHash[hash] = name
	return componentPrefix + name, nil
}

func (c *components) uniqueName(hint string) string {
	base := componentName(hint)
	name := base
	for i := 1; ; i++ {
		if _, taken := c.schemas[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s%d", base, i)
	}
}

func (c *components) document() map[string]any {
	if len(c.schemas) == 0 {
		return nil
	}
	return map[string]any{"schemas": c.schemas}
}

// digest hashes the JSON form of schema; encoding/json sorts map keys so equal
// schemas hash equally.
func digest(schema any) (string, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("openapi: hashing component: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

var componentNameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// componentName turns field keys such as "fields.id" into component names
// such as "fields_id".
func componentName(hint string) string {
	name := strings.Trim(componentNameUnsafe.ReplaceAllString(hint, "_"), "_")
	switch {
	case name == "":
		return "Schema"
	case name[0] >= '0' && name[0] <= '9':
		return "_" + name
	}
	return name
}
