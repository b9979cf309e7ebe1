// Package command defines the messages exchanged between the dispatcher,
// page agents and panels. Command is a closed union: only the types in this
// package implement it, so a type switch over them is exhaustive.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned by Unmarshal for an unrecognised action.
	ErrUnknownAction = errors.New("command: unknown action")
	// ErrMissingHopID is returned by Unmarshal for a scroll or remove
	// without a hop id.
	ErrMissingHopID = errors.New("command: missing hopId")
)

// Action names as they appear on the wire.
const (
	ActionPing        = "ping"
	ActionTabChanged  = "tabChanged"
	ActionShowModal   = "showHopModal"
	ActionScroll      = "scrollToHop"
	ActionRemove      = "removeHop"
	ActionOpenSidebar = "openSidebar"
	ActionHideMenu    = "hideContextMenu"
)

// Command is one cross-context message.
type Command interface {
	Action() string
	sealed()
}

// Ping is the liveness probe sent before talking to a page agent.
type Ping struct{}

// TabChanged tells a panel or page agent the tab now shows URL.
type TabChanged struct {
	URL string `json:"url"`
}

// ShowModal asks the page agent to open the create-hop overlay for the
// element captured by the last context menu.
type ShowModal struct {
	SelectedText string `json:"selectedText,omitempty"`
}

// Scroll asks the page agent to bring a hop's marker into view.
type Scroll struct {
	HopID string `json:"hopId"`
}

// Remove asks the page agent to drop a hop's marker.
type Remove struct {
	HopID string `json:"hopId"`
}

// OpenSidebar is sent by a page agent when a marker is clicked.
type OpenSidebar struct{}

// HideMenu is sent by a page agent when the right-clicked element cannot
// carry a hop.
type HideMenu struct{}

func (Ping) Action() string        { return ActionPing }
func (TabChanged) Action() string  { return ActionTabChanged }
func (ShowModal) Action() string   { return ActionShowModal }
func (Scroll) Action() string      { return ActionScroll }
func (Remove) Action() string      { return ActionRemove }
func (OpenSidebar) Action() string { return ActionOpenSidebar }
func (HideMenu) Action() string    { return ActionHideMenu }

func (Ping) sealed()        {}
func (TabChanged) sealed()  {}
func (ShowModal) sealed()   {}
func (Scroll) sealed()      {}
func (Remove) sealed()      {}
func (OpenSidebar) sealed() {}
func (HideMenu) sealed()    {}

// Reply is the acknowledgement of a delivered command.
type Reply struct {
	Status string `json:"status,omitempty"`
}

// Ack is the reply to Ping.
var Ack = Reply{Status: "ok"}

// Marshal encodes c as a flat JSON object carrying an "action" field.
func Marshal(c Command) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("command: marshal %s: %w", c.Action(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("command: marshal %s: %w", c.Action(), err)
	}
	action, _ := json.Marshal(c.Action())
	fields["action"] = action
	return json.Marshal(fields)
}

// Unmarshal decodes a message produced by Marshal (or by the extension).
func Unmarshal(data []byte) (Command, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("command: unmarshal: %w", err)
	}

	var c Command
	switch head.Action {
	case ActionPing:
		return Ping{}, nil
	case ActionOpenSidebar:
		return OpenSidebar{}, nil
	case ActionHideMenu:
		return HideMenu{}, nil
	case ActionTabChanged:
		var v TabChanged
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("command: unmarshal %s: %w", head.Action, err)
		}
		c = v
	case ActionShowModal:
		var v ShowModal
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("command: unmarshal %s: %w", head.Action, err)
		}
		c = v
	case ActionScroll:
		var v Scroll
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("command: unmarshal %s: %w", head.Action, err)
		}
		if v.HopID == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHopID, head.Action)
		}
		c = v
	case ActionRemove:
		var v Remove
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("command: unmarshal %s: %w", head.Action, err)
		}
		if v.HopID == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHopID, head.Action)
		}
		c = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}
	return c, nil
}
