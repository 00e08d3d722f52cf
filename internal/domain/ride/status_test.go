package ride

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"requested", StatusRequested, false},
		{" accepted ", StatusAccepted, false},
		{"onRide", StatusOnRide, false},
		{"cancelled", StatusCancelled, false},
		{"canceled", StatusCancelled, false}, // legacy spelling
		{"notApprove", StatusNotApprove, false},
		{"driving", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusRequested, StatusAccepted},
		{StatusRequested, StatusCancelled},
		{StatusRequested, StatusNotApprove},
		{StatusAccepted, StatusArrived},
		{StatusAccepted, StatusCancelled},
		{StatusAccepted, StatusRequested}, // captain cancel re-dispatch
		{StatusArrived, StatusOnRide},
		{StatusArrived, StatusCancelled},
		{StatusArrived, StatusRequested},
		{StatusOnRide, StatusCompleted},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusRequested, StatusArrived},
		{StatusRequested, StatusOnRide},
		{StatusAccepted, StatusCompleted},
		{StatusOnRide, StatusCancelled},
		{StatusCompleted, StatusRequested},
		{StatusCancelled, StatusRequested},
		{StatusNotApprove, StatusAccepted},
	}
	for _, tc := range forbidden {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be forbidden", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesAreDeadEnds(t *testing.T) {
	terminals := []Status{StatusCompleted, StatusCancelled, StatusNotApprove}
	all := []Status{
		StatusRequested, StatusAccepted, StatusArrived, StatusOnRide,
		StatusCompleted, StatusCancelled, StatusNotApprove,
	}

	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}
