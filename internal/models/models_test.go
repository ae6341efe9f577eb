package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestPresentationAction(t *testing.T) {
	officer := Human(uuid.New())

	tests := []struct {
		name      string
		initiator Initiator
		trigger   ScanTrigger
		want      Action
	}{
		{"officer image scan", officer, TriggerImage, ActionScanned},
		{"officer sweep", officer, TriggerSweep, ActionScanned},
		{"system image scan", System(), TriggerImage, ActionAutomatedImageMatch},
		{"system sweep", System(), TriggerSweep, ActionAutomatedMatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PresentationAction(tc.initiator, tc.trigger); got != tc.want {
				t.Errorf("PresentationAction() = %s; want %s", got, tc.want)
			}
		})
	}
}

func TestInitiator_Validate(t *testing.T) {
	nilID := uuid.Nil
	tests := []struct {
		name    string
		in      Initiator
		wantErr bool
	}{
		{"human", Human(uuid.New()), false},
		{"system", System(), false},
		{"human without id", Initiator{Kind: InitiatorHuman}, true},
		{"human with zero id", Initiator{Kind: InitiatorHuman, PoliceID: &nilID}, true},
		{"system with id", Initiator{Kind: InitiatorSystem, PoliceID: &nilID}, true},
		{"unknown kind", Initiator{Kind: "robot"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAction_Classification(t *testing.T) {
	for _, a := range []Action{ActionScanned, ActionAutomatedMatch, ActionAutomatedImageMatch} {
		if !a.IsPresentation() || a.IsDecision() {
			t.Errorf("%s should be a presentation only", a)
		}
	}
	for _, a := range []Action{ActionConfirmed, ActionRejected} {
		if a.IsPresentation() || !a.IsDecision() {
			t.Errorf("%s should be a decision only", a)
		}
	}
	if Action("deleted").Valid() {
		t.Error("unknown action should be invalid")
	}
}
