package core

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

//go:embed scenarios/default.json
var defaultScenario []byte

// Scenario summarises what a loader registered.
type Scenario struct {
	Stations []string
	Docks    []string
	Edges    int
}

// internal JSON shapes, unexported so they can evolve freely.
type scenarioJSON struct {
	Stations []stationJSON `json:"stations"`
	Docks    []dockJSON    `json:"docks"`
	Edges    [][2]string   `json:"edges"`
}

type stationJSON struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type dockJSON struct {
	stationJSON
	ChargeCapacity int `json:"chargeCapacity"`
}

// LoadScenario reads a JSON road graph from r into n. Edges are
// bidirectional and refer to stations or docks by name.
func LoadScenario(n *Network, r io.Reader) (*Scenario, error) {
	if n == nil {
		return nil, fmt.Errorf("LoadScenario: network is nil")
	}

	var payload scenarioJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	result := &Scenario{
		Stations: make([]string, 0, len(payload.Stations)),
		Docks:    make([]string, 0, len(payload.Docks)),
	}
	for _, s := range payload.Stations {
		if _, err := n.AddStation(s.Name, model.Point{s.X, s.Y}); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		result.Stations = append(result.Stations, s.Name)
	}
	for _, d := range payload.Docks {
		if _, err := n.AddDock(d.Name, model.Point{d.X, d.Y}, d.ChargeCapacity); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		result.Docks = append(result.Docks, d.Name)
	}
	for _, e := range payload.Edges {
		a, okA := n.StationByName(e[0])
		b, okB := n.StationByName(e[1])
		if !okA || !okB {
			return nil, fmt.Errorf("LoadScenario: edge %s-%s: %w", e[0], e[1], ErrUnknownStation)
		}
		if err := n.Connect(a, b); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		result.Edges++
	}
	return result, nil
}

// LoadDefaultScenario registers the built-in twenty-station demo graph with
// three loading docks.
func LoadDefaultScenario(n *Network) (*Scenario, error) {
	return LoadScenario(n, bytes.NewReader(defaultScenario))
}

// PlacePods spreads count pods over the network's docks round robin.
func PlacePods(n *Network, count int) ([]model.PodID, error) {
	docks := n.Docks()
	if len(docks) == 0 && count > 0 {
		return nil, fmt.Errorf("PlacePods: %w", ErrNotDock)
	}
	ids := make([]model.PodID, 0, count)
	for i := range count {
		id, err := n.AddPod(docks[i%len(docks)].ID)
		if err != nil {
			return ids, fmt.Errorf("PlacePods: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
