package loadbalance

import (
	"math/rand"

	"nvim-rpc/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to
// their weight. Non-positive weights count as zero; when every weight is zero
// the pick is uniform.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	// 计算总权重
	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += max(ep.Weight, 0)
	}
	if totalWeight == 0 {
		return endpoints[rand.Intn(len(endpoints))], nil
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.Intn(totalWeight)
	for _, ep := range endpoints {
		r -= max(ep.Weight, 0)
		if r < 0 {
			return ep, nil
		}
	}
	return endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
