// Copyright 2025 StreamNative, Inc.
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

package model

const (
	AttributeID   = "_id"
	AttributeName = "_name"
	AttributeHost = "_host"
)

// DiscoveryNode is a data node that can hold shard copies.
type DiscoveryNode struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Host       string            `json:"host,omitempty" yaml:"host,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attribute resolves a node attribute, including the `_id`, `_name` and
// `_host` pseudo-attributes.
func (n DiscoveryNode) Attribute(name string) (string, bool) {
	switch name {
	case AttributeID:
		return n.ID, true
	case AttributeName:
		if n.Name == "" {
			return n.ID, true
		}
		return n.Name, true
	case AttributeHost:
		return n.Host, n.Host != ""
	}
	v, ok := n.Attributes[name]
	return v, ok
}
