package protocol

import "testing"

func TestIsQueryDonePulse(t *testing.T) {
	cases := []struct {
		name string
		ev   OutputEvent
		want bool
	}{
		{"pulse", OutputEvent{Type: OutputResult, NewSessionToken: "tok-1"}, true},
		{"result with body is not a pulse", OutputEvent{Type: OutputResult, Result: "done", NewSessionToken: "tok-1"}, false},
		{"result without new token is not a pulse", OutputEvent{Type: OutputResult}, false},
		{"non-result type is never a pulse", OutputEvent{Type: OutputText, NewSessionToken: "tok-1"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.ev.IsQueryDonePulse(); got != c.want {
				t.Errorf("IsQueryDonePulse() = %v, want %v", got, c.want)
			}
		})
	}
}
