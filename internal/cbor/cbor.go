// Copyright 2021 The Matrix.org Foundation C.I.C.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cbor converts between JSON resource representations and the
// compact CBOR encoding notifications are actually sent over the wire in,
// mapping JSON object keys to small integer keys the way a constrained
// client and server would agree on ahead of time to avoid spending payload
// bytes on field names.
package cbor

import (
	"fmt"
	"reflect"
	"sort"

	cbor "github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec converts a single JSON object to and from CBOR, remapping object
// keys named in the enum table to small integers on the wire.
type Codec struct {
	keys     map[string]int
	enumKeys map[int]string
}

// NewCodec builds a Codec from a key enum table. It is an error for two
// keys to map to the same integer.
func NewCodec(keys map[string]int) (*Codec, error) {
	c := &Codec{
		keys:     keys,
		enumKeys: make(map[int]string, len(keys)),
	}
	for k, v := range keys {
		if existing, ok := c.enumKeys[v]; ok {
			return nil, fmt.Errorf("cbor: duplicate key integer %d for %q and %q", v, existing, k)
		}
		c.enumKeys[v] = k
	}
	return c, nil
}

// ToJSON decodes a single CBOR-encoded object into JSON, expanding any
// integer keys back to their string names.
func (c *Codec) ToJSON(input []byte) ([]byte, error) {
	var intermediate interface{}
	if err := cbor.Unmarshal(input, &intermediate); err != nil {
		return nil, fmt.Errorf("cbor.ToJSON: %w", err)
	}
	return json.Marshal(cborToJSONValue(intermediate, c.enumKeys))
}

// ToCBOR encodes a single JSON object as CBOR, replacing any enum-table
// key names with their integer form.
func (c *Codec) ToCBOR(input []byte) ([]byte, error) {
	var intermediate interface{}
	if err := json.Unmarshal(input, &intermediate); err != nil {
		return nil, fmt.Errorf("cbor.ToCBOR: %w", err)
	}
	return cbor.Marshal(jsonToCBORValue(intermediate, c.keys))
}

func jsonToCBORValue(v interface{}, lookup map[string]int) interface{} {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		for i, elem := range t {
			t[i] = jsonToCBORValue(elem, lookup)
		}
		return t
	case map[string]interface{}:
		result := make(map[interface{}]interface{}, len(t))
		for k, val := range t {
			if knum, ok := lookup[k]; ok {
				result[knum] = jsonToCBORValue(val, lookup)
			} else {
				result[k] = jsonToCBORValue(val, lookup)
			}
		}
		return result
	default:
		return v
	}
}

func cborToJSONValue(v interface{}, lookup map[int]string) interface{} {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		for i, elem := range t {
			t[i] = cborToJSONValue(elem, lookup)
		}
		return t
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(t))
		var intKeys []int
		intVals := make(map[int]interface{}, len(t))
		var strKeys []string
		for k, val := range t {
			if ks, ok := k.(string); ok {
				strKeys = append(strKeys, ks)
				continue
			}
			if ki, ok := asInt(k); ok {
				intKeys = append(intKeys, ki)
				intVals[ki] = val
			}
		}
		sort.Ints(intKeys)
		sort.Strings(strKeys)
		for _, ik := range intKeys {
			if name, ok := lookup[ik]; ok {
				result[name] = cborToJSONValue(intVals[ik], lookup)
			} else {
				result[fmt.Sprintf("%d", ik)] = cborToJSONValue(intVals[ik], lookup)
			}
		}
		for _, sk := range strKeys {
			result[sk] = cborToJSONValue(t[sk], lookup)
		}
		return result
	default:
		return v
	}
}

func asInt(k interface{}) (int, bool) {
	switch n := k.(type) {
	case uint64:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		rv := reflect.ValueOf(k)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Int64 {
			return int(rv.Int()), true
		}
		return 0, false
	}
}
