package status

import (
	"fmt"
	"strconv"
	"strings"
)

// Inputs is everything the aggregator looks at. It is collected by the
// launcher from the rule manager, the supervisor and the health monitor.
type Inputs struct {
	Configured  bool
	Alive       bool
	Responding  bool
	ActivePorts []int
	Version     string
}

// Snapshot is the derived user-facing status. It is recomputed whole on
// every poll tick and lifecycle transition; nothing mutates it in place.
type Snapshot struct {
	Running      bool   `json:"running"`
	Responding   bool   `json:"responding"`
	ForwardCount int    `json:"forward_count"`
	Version      string `json:"version"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	Line3        string `json:"line3"`
}

// Aggregate derives a Snapshot from the current component states.
// Pure function: identical inputs always yield an identical snapshot.
func Aggregate(in Inputs) Snapshot {
	snap := Snapshot{
		Running:      in.Alive,
		Responding:   in.Responding,
		ForwardCount: len(in.ActivePorts),
		Version:      in.Version,
	}

	switch {
	case !in.Configured:
		snap.Line1 = "Not configured"
	case !in.Alive:
		snap.Line1 = "Process not running"
	case in.Responding:
		if in.Version != "" {
			snap.Line1 = "Connected: " + in.Version
		} else {
			snap.Line1 = "Connected"
		}
		snap.Line2 = "API: Responding"
		if len(in.ActivePorts) > 0 {
			snap.Line3 = fmt.Sprintf("Forwards: Active (%s)", joinPorts(in.ActivePorts))
		} else {
			snap.Line3 = "Forwards: None active"
		}
	default:
		snap.Line1 = "Not responding"
		snap.Line2 = "API: Not responding"
		if len(in.ActivePorts) > 0 {
			snap.Line3 = fmt.Sprintf("Forwards: Active (%s)", joinPorts(in.ActivePorts))
		} else {
			snap.Line3 = "Forwards: None"
		}
	}
	return snap
}

func joinPorts(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}
