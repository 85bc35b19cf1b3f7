package mqttbroker

import "testing"

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"telemetry/drone-1", "telemetry/drone-1", true},
		{"telemetry/drone-1", "telemetry/drone-2", false},
		{"telemetry/+", "telemetry/drone-1", true},
		{"telemetry/+", "telemetry/drone-1/ack", false},
		{"telemetry/+/ack", "telemetry/drone-1/ack", true},
		{"telemetry/+/ack", "telemetry/batch/ack", true},
		{"telemetry/#", "telemetry", true},
		{"telemetry/#", "telemetry/drone-1/ack", true},
		{"#", "telemetry/drone-1", true},
		{"+", "telemetry", true},
		{"+/+", "telemetry", false},
		{"#", "$SYS/uptime", false},
		{"+/uptime", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/uptime", true},
		{"telemetry/+", "telemetry/", true},
	}

	for _, tt := range tests {
		if got := topicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestValidFilter(t *testing.T) {
	valid := []string{"a", "a/b", "+", "#", "a/+/c", "a/#", "+/+/#"}
	invalid := []string{"", "a/#/b", "a+", "a/b#", "#/a"}

	for _, f := range valid {
		if err := validFilter(f); err != nil {
			t.Errorf("validFilter(%q) = %v", f, err)
		}
	}
	for _, f := range invalid {
		if err := validFilter(f); err == nil {
			t.Errorf("validFilter(%q) accepted", f)
		}
	}
}

func TestValidTopic(t *testing.T) {
	if err := validTopic("telemetry/drone-1"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	for _, bad := range []string{"", "telemetry/+", "telemetry/#"} {
		if err := validTopic(bad); err == nil {
			t.Errorf("validTopic(%q) accepted", bad)
		}
	}
}
