package engine

// assignOutboundAlias returns the alias to use for topic and whether the
// topic name must still be sent (true on first use of that alias, or when
// no alias is available). It implements the outbound LRU the spec calls
// for: when the server's advertised ceiling is reached, the least
// recently used alias is evicted and reused for the new topic.
func (e *Engine) assignOutboundAlias(t string) (alias uint16, sendTopic bool) {
	if e.serverTopicAliasMax == 0 {
		return 0, true
	}
	if a, ok := e.outboundAlias[t]; ok {
		e.touchOutboundAlias(t)
		return a, false
	}
	if uint16(len(e.outboundAlias)) < e.serverTopicAliasMax {
		e.outboundAliasSeq++
		e.outboundAlias[t] = e.outboundAliasSeq
		e.outboundAliasOrder = append(e.outboundAliasOrder, t)
		return e.outboundAliasSeq, true
	}
	lru := e.outboundAliasOrder[0]
	a := e.outboundAlias[lru]
	delete(e.outboundAlias, lru)
	e.outboundAlias[t] = a
	e.outboundAliasOrder = append(e.outboundAliasOrder[1:], t)
	return a, true
}

// touchOutboundAlias moves t to the most-recently-used end of
// outboundAliasOrder. Linear scan, but the alias ceiling a server
// advertises is small in practice.
func (e *Engine) touchOutboundAlias(t string) {
	for i, candidate := range e.outboundAliasOrder {
		if candidate == t {
			e.outboundAliasOrder = append(e.outboundAliasOrder[:i], e.outboundAliasOrder[i+1:]...)
			break
		}
	}
	e.outboundAliasOrder = append(e.outboundAliasOrder, t)
}

// recordInboundAlias maps an inbound alias to its topic name (set when the
// PUBLISH carries both), or resolves a topic-less PUBLISH's alias back to
// the name. Returns ok=false when the alias is unknown, which the caller
// must treat as a protocol violation (reason 0x94).
func (e *Engine) recordInboundAlias(alias uint16, topicName string) (resolved string, ok bool) {
	if alias == 0 {
		return topicName, true
	}
	if topicName != "" {
		e.inboundAlias[alias] = topicName
		return topicName, true
	}
	t, found := e.inboundAlias[alias]
	return t, found
}
