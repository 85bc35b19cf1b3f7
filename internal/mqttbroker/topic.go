package mqttbroker

import (
	"fmt"
	"strings"
)

// validFilter reports whether filter is a well-formed MQTT topic filter.
// '+' must occupy a whole level and '#' must be the whole last level.
func validFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("empty topic filter")
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("'#' must be the last level in %q", filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("wildcard must occupy a whole level in %q", filter)
		}
	}
	return nil
}

// validTopic reports whether topic may be used as a publish topic name.
func validTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("wildcards not allowed in topic %q", topic)
	}
	return nil
}

// topicMatches reports whether topic is selected by filter.
func topicMatches(filter, topic string) bool {
	// Filters starting with a wildcard never match $-prefixed system topics.
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
