package proto

// Topic names a category of message published by the engine.
type Topic string

const (
	TopicTime      Topic = "TIME"
	TopicStatus    Topic = "STATUS"
	TopicEvent     Topic = "EVENT"
	TopicFields    Topic = "FIELDS"
	TopicModelTree Topic = "MODEL_TREE"
)

// Topics is the full subscription set, in the order subscriptions are made.
var Topics = []Topic{TopicTime, TopicStatus, TopicEvent, TopicFields, TopicModelTree}

// IsKnown reports whether t is one of the subscribed topics.
func (t Topic) IsKnown() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// TopicNames returns Topics as plain strings for transports that subscribe by name.
func TopicNames() []string {
	names := make([]string, len(Topics))
	for i, t := range Topics {
		names[i] = string(t)
	}
	return names
}

// Placeholder shown for time fields and watch values that have not been received yet.
const Placeholder = "-"

type TimeSample struct {
	SimulationTime string `json:"simulationTime"`
	MissionTime    string `json:"missionTime"`
	EpochTime      string `json:"epochTime"`
	ZuluTime       string `json:"zuluTime"`
}

// EmptyTimeSample is what a TIME message with no fields decodes to.
func EmptyTimeSample() TimeSample {
	return TimeSample{
		SimulationTime: Placeholder,
		MissionTime:    Placeholder,
		EpochTime:      Placeholder,
		ZuluTime:       Placeholder,
	}
}

type EventRecord struct {
	Level   string `json:"level"` // severity tag, "INFO" when absent
	Message string `json:"log"`   // free text, may carry JSON fragments
}

// FieldUpdate is one (path, value) pair from a FIELDS batch. Value holds a decoded
// JSON value as produced by DecodeValue.
type FieldUpdate struct {
	VariablePath string `json:"variablePath"`
	Value        any    `json:"variableValue"`
}
