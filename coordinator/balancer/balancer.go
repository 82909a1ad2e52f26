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

package balancer

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

// Balancer places unassigned copies, moves the copies which may not remain
// where they are and relocates copies from heavy to light nodes.
type Balancer struct {
	*slog.Logger

	settings policies.BalanceSettings
	weight   WeightFunction
}

func NewBalancer(settings policies.BalanceSettings) *Balancer {
	return &Balancer{
		Logger: slog.With(
			slog.String("component", "balancer"),
		),
		settings: settings,
		weight:   NewWeightFunction(settings),
	}
}

func (b *Balancer) WeightFunction() WeightFunction {
	return b.weight
}

// Allocate runs the phases of one pass over the routing nodes of alloc and
// returns the decision taken for every copy it looked at. An error means
// the pass was cancelled or hit a broken invariant, and its routing nodes
// must be discarded.
func (b *Balancer) Allocate(ctx context.Context, alloc *allocation.RoutingAllocation) ([]allocation.ShardDecision, error) {
	m, err := NewModel(alloc)
	if err != nil {
		return nil, err
	}
	p := &pass{
		Balancer: b,
		alloc:    alloc,
		nodes:    alloc.RoutingNodes(),
		deciders: alloc.Deciders(),
		model:    m,
	}
	if err := p.allocateUnassigned(ctx); err != nil {
		return nil, err
	}
	if err := p.moveShards(ctx); err != nil {
		return nil, err
	}
	if err := p.rebalance(ctx); err != nil {
		return nil, err
	}
	return p.decisions, nil
}

type pass struct {
	*Balancer

	alloc    *allocation.RoutingAllocation
	nodes    *routing.RoutingNodes
	deciders allocation.Decider
	model    *Model

	decisions []allocation.ShardDecision
}

type copyKey struct {
	id      model.ShardID
	primary bool
}

func (p *pass) allocateUnassigned(ctx context.Context) error {
	unassigned := p.nodes.Unassigned()
	slices.SortStableFunc(unassigned, p.compareAllocationOrder)

	failed := map[copyKey]allocation.ShardDecision{}
	for _, shard := range unassigned {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := copyKey{id: shard.ShardID, primary: shard.Primary}
		if previous, found := failed[key]; found {
			// an identical copy already found no node
			previous.Shard = shard
			p.decisions = append(p.decisions, previous)
			continue
		}

		decision, err := p.allocateShard(shard)
		if err != nil {
			return err
		}
		if decision.Outcome != allocation.OutcomeAllocated {
			failed[key] = decision
		}
		p.decisions = append(p.decisions, decision)
	}
	return nil
}

// compareAllocationOrder puts primaries before replicas, then follows the
// index priority and the shard number.
func (p *pass) compareAllocationOrder(a, b model.ShardRouting) int {
	if a.Primary != b.Primary {
		if a.Primary {
			return -1
		}
		return 1
	}
	if a.ShardID.Index != b.ShardID.Index {
		if c := model.CompareAllocationPriority(p.index(a.ShardID.Index), p.index(b.ShardID.Index)); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ShardID.Shard, b.ShardID.Shard)
}

func (p *pass) index(name string) model.IndexMetadata {
	if m, ok := p.alloc.Index(name); ok {
		return m
	}
	return model.IndexMetadata{Name: name}
}

func (p *pass) allocateShard(shard model.ShardRouting) (allocation.ShardDecision, error) {
	target, nodeDecisions := p.selectNode(shard, "")
	decision := allocation.ShardDecision{Shard: shard}

	if target.Type == allocation.Yes {
		initialized, err := p.nodes.Initialize(shard, target.NodeID)
		if err != nil {
			return decision, err
		}
		if err := p.model.AddShard(target.NodeID, initialized); err != nil {
			return decision, err
		}
		p.Debug("allocated shard",
			slog.Any("shard", shard.ShardID),
			slog.Bool("primary", shard.Primary),
			slog.String("node", target.NodeID),
			slog.Float64("weight", target.Weight),
		)
		decision.Outcome = allocation.OutcomeAllocated
		decision.NodeID = target.NodeID
		if p.alloc.Explain() {
			decision.NodeDecisions = nodeDecisions
		}
		return decision, nil
	}

	decision.NodeDecisions = nodeDecisions
	decision.Explanations = restrictions(nodeDecisions, target.Type)
	if target.Type == allocation.Throttle {
		p.nodes.UpdateUnassigned(shard.ShardID, shard.Primary, model.AllocationStatusDecidersThrottled)
		decision.Outcome = allocation.OutcomeThrottled
	} else {
		p.nodes.UpdateUnassigned(shard.ShardID, shard.Primary, model.AllocationStatusDecidersNo)
		decision.Outcome = allocation.OutcomeNoValidNode
	}
	p.Debug("shard stays unassigned",
		slog.Any("shard", shard.ShardID),
		slog.Bool("primary", shard.Primary),
		slog.String("outcome", string(decision.Outcome)),
	)
	return decision, nil
}

// selection is the outcome of a node selection: the lightest node saying
// YES, or only the best decision type seen when no node says YES.
type selection struct {
	Type   allocation.Type
	NodeID string
	Weight float64
}

// selectNode asks every node but exclude for the copy. Nodes holding a copy
// of the shard are rejected without consulting the deciders.
func (p *pass) selectNode(shard model.ShardRouting, exclude string) (selection, []allocation.NodeDecision) {
	best := selection{Type: allocation.No}
	nodeDecisions := make([]allocation.NodeDecision, 0, len(p.model.NodeIDs()))
	for _, nodeID := range p.model.NodeIDs() {
		if nodeID == exclude {
			continue
		}
		routingNode := p.nodes.Node(nodeID)
		weight := p.weight.Weight(p.model, p.model.Node(nodeID))

		var decision allocation.Decision
		if existing, found := routingNode.Shard(shard.ShardID); found {
			decision = allocation.NoDecision(allocation.SameShardDeciderName,
				"a copy of this shard is already allocated to this node [%s]", existing)
		} else {
			decision = p.deciders.CanAllocate(shard, routingNode, p.alloc)
		}
		nodeDecisions = append(nodeDecisions, allocation.NodeDecision{NodeID: nodeID, Decision: decision, Weight: weight})

		switch decision.Type {
		case allocation.Yes:
			if best.Type != allocation.Yes || weight < best.Weight {
				best = selection{Type: allocation.Yes, NodeID: nodeID, Weight: weight}
			}
		case allocation.Throttle:
			if best.Type == allocation.No {
				best.Type = allocation.Throttle
			}
		}
	}
	return best, nodeDecisions
}

// restrictions collects the explanations of the nodes which decided worse
// than YES. When the copy was throttled only the throttling nodes count.
func restrictions(nodeDecisions []allocation.NodeDecision, outcome allocation.Type) []allocation.Explanation {
	var res []allocation.Explanation
	for _, nd := range nodeDecisions {
		if nd.Decision.Type == allocation.Yes || (outcome == allocation.Throttle && nd.Decision.Type != allocation.Throttle) {
			continue
		}
		res = append(res, nd.Decision.Restrictions()...)
	}
	return res
}

func (p *pass) moveShards(ctx context.Context) error {
	for _, nodeID := range p.model.NodeIDs() {
		routingNode := p.nodes.Node(nodeID)
		for _, shard := range routingNode.Shards() {
			if !shard.Started() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			remain := p.deciders.CanRemain(shard, routingNode, p.alloc)
			if remain.Type != allocation.No {
				continue
			}
			if err := p.moveShard(shard, remain); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pass) moveShard(shard model.ShardRouting, remain allocation.Decision) error {
	target, nodeDecisions := p.selectNode(shard, shard.CurrentNodeID)
	decision := allocation.ShardDecision{
		Shard:        shard,
		Explanations: remain.Restrictions(),
	}

	switch target.Type {
	case allocation.Yes:
		source, relocationTarget, err := p.nodes.Relocate(shard, target.NodeID)
		if err != nil {
			return err
		}
		if err := p.model.Move(shard.CurrentNodeID, shard, relocationTarget); err != nil {
			return err
		}
		p.Info("moving shard which cannot remain on its node",
			slog.Any("shard", shard.ShardID),
			slog.Bool("primary", shard.Primary),
			slog.String("from", source.CurrentNodeID),
			slog.String("to", target.NodeID),
		)
		decision.Outcome = allocation.OutcomeMoved
		decision.NodeID = target.NodeID
		if p.alloc.Explain() {
			decision.NodeDecisions = nodeDecisions
		}
	case allocation.Throttle:
		decision.Outcome = allocation.OutcomeMoveThrottled
		decision.NodeDecisions = nodeDecisions
		decision.Explanations = append(decision.Explanations, restrictions(nodeDecisions, target.Type)...)
	default:
		decision.Outcome = allocation.OutcomeCannotMove
		decision.NodeDecisions = nodeDecisions
		decision.Explanations = append(decision.Explanations, restrictions(nodeDecisions, target.Type)...)
	}
	p.decisions = append(p.decisions, decision)
	return nil
}

func (p *pass) rebalance(ctx context.Context) error {
	if d := p.deciders.CanRebalanceCluster(p.alloc); d.Type != allocation.Yes {
		p.Debug("rebalancing is not allowed", slog.String("decision", d.String()))
		p.decisions = append(p.decisions, allocation.ShardDecision{
			Outcome:      allocation.OutcomeRebalanceDisallowed,
			Explanations: d.Restrictions(),
		})
		return nil
	}

	for moves := 0; moves < p.settings.RebalanceMoveBudget; moves++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		moved, err := p.rebalanceStep()
		if err != nil {
			return err
		}
		if !moved {
			break
		}
	}
	return nil
}

// rebalanceStep relocates one copy, trying the heaviest node first and,
// for each, the lightest nodes first. It reports false when no pair of
// nodes has a move that narrows the cluster spread.
func (p *pass) rebalanceStep() (bool, error) {
	ranked := p.model.Rank(p.weight)
	if len(ranked) < 2 {
		return false, nil
	}
	spread := ranked[len(ranked)-1].Weight - ranked[0].Weight
	for i := len(ranked) - 1; i > 0; i-- {
		heavy := ranked[i]
		for j := 0; j < i; j++ {
			light := ranked[j]
			gap := heavy.Weight - light.Weight
			if gap <= p.settings.Threshold {
				break
			}
			moved, err := p.tryRelocate(ranked, heavy, light, gap, spread)
			if err != nil || moved {
				return moved, err
			}
		}
	}
	return false, nil
}

// spreadAfter is the max-min weight spread left by moving delta from heavy
// to light. Moves keep the averages, so every other weight stays put.
func spreadAfter(ranked []WeightedNode, heavy, light WeightedNode, delta float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, n := range ranked {
		w := n.Weight
		switch n.NodeID() {
		case heavy.NodeID():
			w -= delta
		case light.NodeID():
			w += delta
		}
		lo, hi = min(lo, w), max(hi, w)
	}
	return hi - lo
}

type candidate struct {
	shard           model.ShardRouting
	resultingGap    float64
	resultingSpread float64
	indexOnTarget   int
}

// tryRelocate moves the best copy from heavy to light. A move must shrink
// the gap between the two nodes without reversing it, 0 < delta < gap, and
// must strictly narrow the spread between the heaviest and lightest node.
func (p *pass) tryRelocate(ranked []WeightedNode, heavy, light WeightedNode, gap, spread float64) (bool, error) {
	var candidates []candidate
	for _, shard := range heavy.Shards() {
		if !shard.Started() || light.Contains(shard.ShardID) {
			continue
		}
		delta := p.weight.Delta(p.model.load(shard))
		if delta <= 0 || delta >= gap {
			continue
		}
		resultingSpread := spreadAfter(ranked, heavy, light, delta)
		if resultingSpread >= spread {
			continue
		}
		candidates = append(candidates, candidate{
			shard:           shard,
			resultingGap:    math.Abs(gap - 2*delta),
			resultingSpread: resultingSpread,
			indexOnTarget:   light.NumShardsOfIndex(shard.ShardID.Index),
		})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.resultingSpread, b.resultingSpread); c != 0 {
			return c
		}
		if c := cmp.Compare(a.resultingGap, b.resultingGap); c != 0 {
			return c
		}
		if c := cmp.Compare(a.indexOnTarget, b.indexOnTarget); c != 0 {
			return c
		}
		return a.shard.ShardID.Compare(b.shard.ShardID)
	})

	routingNode := p.nodes.Node(light.NodeID())
	for _, c := range candidates {
		if p.deciders.CanRebalance(c.shard, p.alloc).Type != allocation.Yes {
			continue
		}
		if _, found := routingNode.Shard(c.shard.ShardID); found {
			continue
		}
		if p.deciders.CanAllocate(c.shard, routingNode, p.alloc).Type != allocation.Yes {
			continue
		}

		source, relocationTarget, err := p.nodes.Relocate(c.shard, light.NodeID())
		if err != nil {
			return false, err
		}
		if err := p.model.Move(heavy.NodeID(), c.shard, relocationTarget); err != nil {
			return false, err
		}
		p.Info("rebalancing shard",
			slog.Any("shard", c.shard.ShardID),
			slog.Bool("primary", c.shard.Primary),
			slog.String("from", heavy.NodeID()),
			slog.String("to", light.NodeID()),
			slog.Float64("gap", gap),
			slog.Float64("resulting-gap", c.resultingGap),
			slog.Float64("resulting-spread", c.resultingSpread),
		)
		p.decisions = append(p.decisions, allocation.ShardDecision{
			Shard:   source,
			Outcome: allocation.OutcomeRebalanced,
			NodeID:  light.NodeID(),
		})
		return true, nil
	}
	return false, nil
}
