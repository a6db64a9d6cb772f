package proto

import (
	"errors"
	"fmt"
	"strings"
)

type CommandName string

const (
	CommandRun       CommandName = "RUN"
	CommandHold      CommandName = "HOLD"
	CommandStep      CommandName = "STEP"
	CommandProgress  CommandName = "PROGRESS"
	CommandRate      CommandName = "RATE"
	CommandStatus    CommandName = "STATUS"
	CommandModelTree CommandName = "MODEL_TREE"
)

var validCommands = map[CommandName]bool{
	CommandRun:       true,
	CommandHold:      true,
	CommandStep:      true,
	CommandProgress:  true,
	CommandRate:      true,
	CommandStatus:    true,
	CommandModelTree: true,
}

// Command is the JSON object sent on the request/reply channel, e.g.
// {"command":"PROGRESS","millis":500}.
type Command struct {
	Name   CommandName `json:"command"`
	Millis *int64      `json:"millis,omitempty"` // PROGRESS only
	Rate   *float64    `json:"rate,omitempty"`   // RATE only
}

func Run() Command { return Command{Name: CommandRun} }
func Hold() Command { return Command{Name: CommandHold} }
func Step() Command { return Command{Name: CommandStep} }
func Status() Command { return Command{Name: CommandStatus} }
func ModelTreeRequest() Command { return Command{Name: CommandModelTree} }

// Progress advances the simulation by millis of simulated time.
func Progress(millis int64) Command {
	return Command{Name: CommandProgress, Millis: &millis}
}

// Rate sets the simulation speed multiplier.
func Rate(scale float64) Command {
	return Command{Name: CommandRate, Rate: &scale}
}

func (c Command) Validate() error {
	if !validCommands[c.Name] {
		return fmt.Errorf("unknown command %q", c.Name)
	}
	switch c.Name {
	case CommandProgress:
		if c.Millis == nil {
			return errors.New("PROGRESS command requires millis")
		}
		if *c.Millis < 0 {
			return fmt.Errorf("PROGRESS millis must not be negative, got %d", *c.Millis)
		}
	case CommandRate:
		if c.Rate == nil {
			return errors.New("RATE command requires rate")
		}
	}
	return nil
}

// ParseCommandName maps a case-insensitive name (as typed in an API path) onto the vocabulary.
func ParseCommandName(s string) (CommandName, error) {
	name := CommandName(strings.ToUpper(s))
	if !validCommands[name] {
		return "", fmt.Errorf("unknown command %q", s)
	}
	return name, nil
}
