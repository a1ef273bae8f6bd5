package topic

import "strings"

// MaxTopicBytes is the largest a topic name or filter may be, encoded as
// UTF-8: the wire format carries it in a 2-byte length-prefixed UTF-8
// string [MQTT-1.5.3].
const MaxTopicBytes = 65535

// ValidateName checks a PUBLISH topic name [MQTT-3.3.2-1], [MQTT-4.7.3-1].
// Topic names must not be empty, must not exceed MaxTopicBytes, must not
// contain wildcards, and must not contain the Unicode NUL character.
func ValidateName(name string) bool {
	if name == "" || len(name) > MaxTopicBytes {
		return false
	}
	return validLevels(name, false)
}

// ValidateFilter checks a SUBSCRIBE/UNSUBSCRIBE topic filter. Filters may
// use the single-level wildcard '+' and the multi-level wildcard '#', which
// must occupy a whole level and, for '#', must be the final level
// [MQTT-4.7.1-2], [MQTT-4.7.1-3].
func ValidateFilter(filter string) bool {
	if filter == "" || len(filter) > MaxTopicBytes {
		return false
	}
	return validLevels(filter, true)
}

func validLevels(s string, wildcardsAllowed bool) bool {
	levels := strings.Split(s, "/")
	for i, level := range levels {
		if strings.ContainsRune(level, 0) {
			return false
		}
		if !wildcardsAllowed {
			if strings.ContainsAny(level, "+#") {
				return false
			}
			continue
		}
		if level == "#" {
			if i != len(levels)-1 {
				return false
			}
			continue
		}
		if level == "+" {
			continue
		}
		if strings.ContainsAny(level, "+#") {
			return false
		}
	}
	return true
}

// Matches reports whether topicName matches filter per the rules of
// [MQTT-4.7.1-1..3]: '+' matches exactly one level, '#' matches that level
// and all levels below it, and a filter starting with '#' or '+' must not
// match a topic name whose first level begins with '$' (reserved for
// server-internal topics such as "$SYS").
func Matches(filter, topicName string) bool {
	if strings.HasPrefix(topicName, "$") {
		firstLevel := strings.SplitN(filter, "/", 2)[0]
		if firstLevel == "#" || firstLevel == "+" {
			return false
		}
	}

	filterLevels := strings.Split(filter, "/")
	nameLevels := strings.Split(topicName, "/")

	for i, fl := range filterLevels {
		if fl == "#" {
			return true
		}
		if i >= len(nameLevels) {
			return false
		}
		if fl != "+" && fl != nameLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(nameLevels)
}
