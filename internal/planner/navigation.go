package planner

import (
	"encoding/json"

	"github.com/playperu/wayfinder/internal/directions"
)

// Message is a page transition handed to the navigation mechanism.
// The concrete types are GoHome and GoToRoute.
type Message interface {
	Page() string
	isMessage()
}

// Navigator receives navigation messages from a controller.
type Navigator interface {
	Navigate(Message)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Message)

func (f NavigatorFunc) Navigate(m Message) { f(m) }

// GoHome returns to the landing page with an empty planning session.
type GoHome struct{}

func (GoHome) Page() string { return "home" }
func (GoHome) isMessage()   {}

func (GoHome) MarshalJSON() ([]byte, error) {
	type emptyDirections struct {
		Start      string           `json:"start"`
		End        string           `json:"end"`
		Directions []directions.Leg `json:"directions"`
	}
	return json.Marshal(struct {
		Page       string          `json:"page"`
		Directions emptyDirections `json:"directions"`
	}{
		Page:       "home",
		Directions: emptyDirections{Directions: []directions.Leg{}},
	})
}

// GoToRoute opens the turn-by-turn page for a selected route.
type GoToRoute struct {
	Start      string
	End        string
	Directions []directions.Leg
}

func (GoToRoute) Page() string { return "route" }
func (GoToRoute) isMessage()   {}

func (m GoToRoute) MarshalJSON() ([]byte, error) {
	legs := m.Directions
	if legs == nil {
		legs = []directions.Leg{}
	}
	return json.Marshal(struct {
		Page       string           `json:"page"`
		Start      string           `json:"start"`
		End        string           `json:"end"`
		Directions []directions.Leg `json:"directions"`
	}{
		Page:       "route",
		Start:      m.Start,
		End:        m.End,
		Directions: legs,
	})
}
