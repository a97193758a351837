package assembler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// canonicalizeOutputSchema validates schema as JSON Schema and returns its
// canonical JSON form (sorted object keys via encoding/json's map
// marshaling), so two textually different but semantically identical
// schemas hash identically.
func canonicalizeOutputSchema(schema json.RawMessage) (string, error) {
	if len(schema) == 0 {
		return "", nil
	}

	compiler := jsonschema.NewCompiler()
	const resourceName = "output-schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schema)); err != nil {
		return "", fmt.Errorf("assembler: invalid output schema: %w", err)
	}
	if _, err := compiler.Compile(resourceName); err != nil {
		return "", fmt.Errorf("assembler: invalid output schema: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return "", fmt.Errorf("assembler: decode output schema: %w", err)
	}
	canonical, err := json.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("assembler: canonicalize output schema: %w", err)
	}
	return string(canonical), nil
}

// SchemaFingerprint computes the Version's schema fingerprint: the sorted
// list of referenced input keys plus the canonical output-schema hash.
func SchemaFingerprint(inputKeys []string, outputSchema json.RawMessage) (string, error) {
	keys := append([]string{}, inputKeys...)
	sort.Strings(keys)

	canonicalSchema, err := canonicalizeOutputSchema(outputSchema)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	h.Write([]byte(canonicalSchema))
	return hex.EncodeToString(h.Sum(nil)), nil
}
