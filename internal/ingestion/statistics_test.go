package ingestion

import (
	"testing"
)

func eventsOf(types ...EventType) []Event {
	events := make([]Event, len(types))
	for i, et := range types {
		events[i] = Event{ID: string(rune('a' + i)), MatchID: "m1", Type: et}
	}

	return events
}

func repeat(et EventType, n int) []EventType {
	types := make([]EventType, n)
	for i := range types {
		types[i] = et
	}

	return types
}

func TestCalculate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name           string
		events         []Event
		wantGoals      int
		wantFouls      int
		wantPossession float64
	}{
		{
			name:           "empty log",
			events:         nil,
			wantGoals:      0,
			wantFouls:      0,
			wantPossession: 50,
		},
		{
			name:           "single goal",
			events:         eventsOf(EventTypeGoal),
			wantGoals:      1,
			wantPossession: 50,
		},
		{
			name:           "four fouls",
			events:         eventsOf(repeat(EventTypeFoul, 4)...),
			wantFouls:      4,
			wantPossession: 46.67,
		},
		{
			name:           "mixed log",
			events:         eventsOf(EventTypeGoal, EventTypeFoul, EventTypeCard, EventTypeGoal, EventTypeSubstitution),
			wantGoals:      2,
			wantFouls:      1,
			wantPossession: 49.17,
		},
		{
			name:           "unknown type counts as neither",
			events:         eventsOf("penalty-shootout", "Goal", "FOUL", ""),
			wantPossession: 50,
		},
		{
			name:           "sixty fouls reach zero",
			events:         eventsOf(repeat(EventTypeFoul, 60)...),
			wantFouls:      60,
			wantPossession: 0,
		},
		{
			name:           "more than sixty fouls is not clamped",
			events:         eventsOf(repeat(EventTypeFoul, 70)...),
			wantFouls:      70,
			wantPossession: -8.33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate("Lions", "Tigers", tt.events)

			if got.Team != "Lions" || got.Opponent != "Tigers" {
				t.Errorf("Calculate() team/opponent = %q/%q, want Lions/Tigers", got.Team, got.Opponent)
			}

			if got.TotalGoals != tt.wantGoals {
				t.Errorf("Calculate() TotalGoals = %d, want %d", got.TotalGoals, tt.wantGoals)
			}

			if got.TotalFouls != tt.wantFouls {
				t.Errorf("Calculate() TotalFouls = %d, want %d", got.TotalFouls, tt.wantFouls)
			}

			if got.BallPossessionPercentage != tt.wantPossession {
				t.Errorf("Calculate() BallPossessionPercentage = %v, want %v",
					got.BallPossessionPercentage, tt.wantPossession)
			}
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := eventsOf(EventTypeGoal, EventTypeFoul, EventTypeFoul, EventTypeOther)

	first := Calculate("Lions", "Tigers", events)
	second := Calculate("Lions", "Tigers", events)

	if first != second {
		t.Errorf("Calculate() not deterministic: %+v != %+v", first, second)
	}
}

func TestEventType_IsKnown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, et := range KnownEventTypes() {
		if !et.IsKnown() {
			t.Errorf("%q.IsKnown() = false, want true", et)
		}
	}

	if EventType("corner").IsKnown() {
		t.Error(`"corner".IsKnown() = true, want false`)
	}
}

func TestMatch_CloneIsDeep(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	minute := 12
	number := 9

	original := &Match{
		MatchID: "m1",
		Events: []Event{{
			ID:     "e1",
			Type:   EventTypeGoal,
			Minute: &minute,
			Player: &Player{Name: "Ada", Number: &number},
		}},
		Version: 3,
	}

	clone := original.Clone()
	*clone.Events[0].Minute = 80
	*clone.Events[0].Player.Number = 10
	clone.Events[0].Player.Name = "Grace"
	clone.Events = append(clone.Events, Event{ID: "e2"})

	if *original.Events[0].Minute != 12 {
		t.Errorf("original minute mutated through clone: %d", *original.Events[0].Minute)
	}

	if *original.Events[0].Player.Number != 9 || original.Events[0].Player.Name != "Ada" {
		t.Errorf("original player mutated through clone: %+v", original.Events[0].Player)
	}

	if len(original.Events) != 1 {
		t.Errorf("original events length = %d, want 1", len(original.Events))
	}

	if !clone.HasEvent("e2") || original.HasEvent("e2") {
		t.Error("HasEvent() does not reflect the independent logs")
	}
}
