package sharding

import (
	"fmt"
	"strings"
	"testing"
)

func TestGetShardID(t *testing.T) {
	tests := []struct {
		entityID string
		want     int
	}{
		{"user-1", 532},
		{"user-2", 942},
		{"todo-abc", 748},
	}

	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			if got := GetShardID(tt.entityID); got != tt.want {
				t.Errorf("GetShardID(%q) = %v, want %v", tt.entityID, got, tt.want)
			}
		})
	}
}

func TestUserEventSubject(t *testing.T) {
	subject := UserEventSubject("user-1")
	expected := "planner.event.532.user.user-1"
	if subject != expected {
		t.Errorf("UserEventSubject = %v, want %v", subject, expected)
	}
	if !strings.HasPrefix(subject, "planner.event.") {
		t.Errorf("subject outside event stream: %s", subject)
	}
}

func TestDistribution(t *testing.T) {
	distribution := make(map[int]int)
	for i := 0; i < 1000; i++ {
		distribution[GetShardID(fmt.Sprintf("key-%d", i))]++
	}
	if len(distribution) < 100 {
		t.Errorf("only %d unique shards used for 1000 keys", len(distribution))
	}
}
