package routestate

import "testing"

func TestTransitionToGreenWhenNothingUnprinted(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 0, Prior: VisualBlue, Logical: LogicalActive})
	if next != VisualGreen {
		t.Fatalf("expected GREEN, got %v", next)
	}
	if evt != EventCompleteGreen {
		t.Fatalf("expected ROUTE_COMPLETE_GREEN, got %v", evt)
	}
}

func TestTransitionStaysGreenNoDuplicateEvent(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 0, Prior: VisualGreen, Logical: LogicalActive})
	if next != VisualGreen {
		t.Fatalf("expected GREEN, got %v", next)
	}
	if evt != EventNone {
		t.Fatalf("expected no event re-entering GREEN, got %v", evt)
	}
}

func TestTransitionGreenToRedOnNewUnprinted(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 1, Prior: VisualGreen, Logical: LogicalActive})
	if next != VisualRed {
		t.Fatalf("expected RED, got %v", next)
	}
	if evt != EventAlertRed {
		t.Fatalf("expected ROUTE_ALERT_RED, got %v", evt)
	}
}

func TestTransitionCollectedRouteGoesRedOnNewUnprinted(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 2, Prior: VisualGreen, Logical: LogicalCollected})
	if next != VisualRed {
		t.Fatalf("expected RED, got %v", next)
	}
	if evt != EventAlertRed {
		t.Fatalf("expected ROUTE_ALERT_RED, got %v", evt)
	}
}

func TestTransitionStaysRed(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 3, Prior: VisualRed, Logical: LogicalActive})
	if next != VisualRed {
		t.Fatalf("expected RED, got %v", next)
	}
	if evt != EventNone {
		t.Fatalf("expected no repeat RED event, got %v", evt)
	}
}

func TestTransitionBlueWhenFreshUnprinted(t *testing.T) {
	next, evt := Transition(Inputs{Unprinted: 1, Prior: VisualBlue, Logical: LogicalActive})
	if next != VisualBlue {
		t.Fatalf("expected BLUE, got %v", next)
	}
	if evt != EventNone {
		t.Fatalf("expected no event, got %v", evt)
	}
}
