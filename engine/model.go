package engine

import (
	"math"
	"time"

	"github.com/mbocsi/simbridge/proto"
)

// modelTree is the wire form of the stub's fixed model.
var modelTree = proto.ModelTree{Roots: []proto.ModelNode{
	branch("Satellite",
		branch("Power", leaf("voltage"), leaf("current"), leaf("mode")),
		branch("Thermal", leaf("panel_temp"), leaf("heater_on")),
		branch("Attitude", leaf("roll"), leaf("pitch"), leaf("yaw")),
	),
	branch("Clock", leaf("tick")),
	leaf("GroundLink"),
}}

func branch(name string, children ...proto.ModelNode) proto.ModelNode {
	return proto.ModelNode{Name: name, Kind: proto.Branch, Children: children}
}

func leaf(name string) proto.ModelNode {
	return proto.ModelNode{Name: name, Kind: proto.Leaf}
}

// fields computes every model variable at simulated time t.
func fields(t time.Duration, ticks int64) []proto.FieldUpdate {
	s := t.Seconds()
	panel := 20 + 15*math.Sin(s/30)
	return []proto.FieldUpdate{
		{VariablePath: "Satellite.Power.voltage", Value: round(28 + 0.5*math.Sin(s/10))},
		{VariablePath: "Satellite.Power.current", Value: round(1.2 + 0.1*math.Cos(s/7))},
		{VariablePath: "Satellite.Power.mode", Value: powerMode(t)},
		{VariablePath: "Satellite.Thermal.panel_temp", Value: round(panel)},
		{VariablePath: "Satellite.Thermal.heater_on", Value: panel < 10},
		{VariablePath: "Satellite.Attitude.roll", Value: round(2 * math.Sin(s/5))},
		{VariablePath: "Satellite.Attitude.pitch", Value: round(1.5 * math.Cos(s/6))},
		{VariablePath: "Satellite.Attitude.yaw", Value: round(math.Mod(s*3, 360))},
		{VariablePath: "Clock.tick", Value: ticks},
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// powerMode is SAFE for the last 30s of every two simulated minutes.
func powerMode(t time.Duration) string {
	if math.Mod(t.Seconds(), 120) >= 90 {
		return "SAFE"
	}
	return "NOMINAL"
}
