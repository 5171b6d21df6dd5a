package core

import (
	"testing"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

func TestRandomNeighbourSkipsFailed(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	p := f.podAt(t, 1)
	p.failed[0] = struct{}{}
	st := f.net.Station(1)

	for range 20 {
		got, ok := p.randomNeighbour(st)
		if !ok || got != 2 {
			t.Fatalf("randomNeighbour = %s, %v; want s2", got, ok)
		}
	}
}

func TestRandomNeighbourResetsWhenAllFailed(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	p := f.podAt(t, 1)
	p.failed[0] = struct{}{}
	p.failed[2] = struct{}{}
	p.failed[3] = struct{}{}

	got, ok := p.randomNeighbour(f.net.Station(1))
	if !ok || (got != 0 && got != 2) {
		t.Fatalf("randomNeighbour = %s, %v", got, ok)
	}
	if len(p.Failed()) != 0 {
		t.Fatalf("failed set = %v, want cleared", p.Failed())
	}
}

func TestPickDestinationFollowsStrongestSign(t *testing.T) {
	cases := []struct {
		name     string
		advanced bool
		want     model.StationID
	}{
		{name: "basic ignores failed set", advanced: false, want: 3},
		{name: "advanced falls through to next sign", advanced: true, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			params.AdvancedPlanning = tc.advanced
			f := newLineFixture(t, params, 4)
			p := f.podAt(t, 1)
			st := f.net.Station(1)
			st.receiveRoadSign(2, 3)
			st.Decay()
			st.receiveRoadSign(3, 3)
			p.failed[3] = struct{}{}

			got, ok := p.pickDestination(st)
			if !ok || got != tc.want {
				t.Fatalf("pickDestination = %s, %v; want %s", got, ok, tc.want)
			}
		})
	}
}
