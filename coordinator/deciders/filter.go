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

package deciders

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

const FilterName = "filter"

// Filter applies the require, include and exclude node attribute filters,
// first those of the index, then the cluster wide ones.
type Filter struct {
	Base
	cluster policies.FilterSettings
}

func NewFilter(settings policies.FilterSettings) *Filter {
	return &Filter{cluster: settings}
}

func (*Filter) Name() string {
	return FilterName
}

func (d *Filter) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc)
}

func (d *Filter) CanRemain(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc)
}

func (d *Filter) decide(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	n, ok := alloc.Node(node.NodeID())
	if !ok {
		return allocation.NoDecision(FilterName, "node [%s] is not part of the cluster", node.NodeID())
	}
	if m, ok := alloc.Index(shard.ShardID.Index); ok {
		if kind, filters, rejected := rejects(m.RoutingFilters, n); rejected {
			return allocation.NoDecision(FilterName, "node does not match index setting [routingFilters.%s] filters [%s]", kind, filters)
		}
	}
	if kind, filters, rejected := rejects(d.cluster, n); rejected {
		return allocation.NoDecision(FilterName, "node does not match cluster setting [filter.%s] filters [%s]", kind, filters)
	}
	return allocation.YesDecision(FilterName, "node passes the include, exclude and require filters")
}

// rejects returns the kind and the content of the filter that excludes
// the node, if any.
func rejects(f policies.FilterSettings, node model.DiscoveryNode) (string, string, bool) {
	for _, attr := range sortedKeys(f.Require) {
		if !matches(node, attr, f.Require[attr]) {
			return "require", fmt.Sprintf("%s:%q", attr, f.Require[attr]), true
		}
	}
	if len(f.Include) > 0 {
		found := false
		for _, attr := range sortedKeys(f.Include) {
			if matches(node, attr, f.Include[attr]) {
				found = true
				break
			}
		}
		if !found {
			return "include", describe(f.Include), true
		}
	}
	for _, attr := range sortedKeys(f.Exclude) {
		if matches(node, attr, f.Exclude[attr]) {
			return "exclude", fmt.Sprintf("%s:%q", attr, f.Exclude[attr]), true
		}
	}
	return "", "", false
}

// matches reports whether the node attribute matches one of the comma
// separated patterns.
func matches(node model.DiscoveryNode, attr string, patterns string) bool {
	value, ok := node.Attribute(attr)
	if !ok {
		return false
	}
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if matched, err := path.Match(p, value); err == nil && matched {
			return true
		}
	}
	return false
}

func describe(filters map[string]string) string {
	parts := make([]string, 0, len(filters))
	for _, attr := range sortedKeys(filters) {
		parts = append(parts, fmt.Sprintf("%s:%q", attr, filters[attr]))
	}
	return strings.Join(parts, " OR ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
