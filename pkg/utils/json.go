package utils

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrUnparseableJSON is returned when no parsing strategy succeeds.
var ErrUnparseableJSON = errors.New("utils: response is not parseable as JSON")

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFence removes a surrounding ```json ... ``` block, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseLenientJSON decodes model output into v, trying in order:
//  1. strict JSON
//  2. Hjson (unquoted keys, trailing commas, comments), numbers kept exact
//  3. json-repair (truncated arrays, unbalanced brackets)
//
// json-repair narrows decimals to float32, so it only runs when nothing
// else parses. A surrounding markdown code fence is removed first.
func ParseLenientJSON(input string, v any) error {
	input = StripCodeFence(input)

	if err := json.Unmarshal([]byte(input), v); err == nil {
		return nil
	}

	opts := hjson.DefaultDecoderOptions()
	opts.UseJSONNumber = true
	var generic any
	if err := hjson.UnmarshalWithOptions([]byte(input), &generic, opts); err == nil {
		if b, err := json.Marshal(generic); err == nil {
			if err := json.Unmarshal(b, v); err == nil {
				return nil
			}
		}
	}

	if repaired, err := jsonrepair.RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return ErrUnparseableJSON
}

// PrettyJSON renders v as 2-space indented JSON for embedding in prompts.
func PrettyJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
