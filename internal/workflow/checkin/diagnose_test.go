// SPDX-License-Identifier: Apache-2.0

package checkin

import "testing"

func TestDiagnose_LookupErrorWins(t *testing.T) {
	d := Diagnose(Signals{
		LookupError:        "no account found for nobody@x.com",
		SubscriptionStatus: "past_due",
	})
	if !d.RequiresHuman {
		t.Fatal("lookup failure must require a human")
	}
	if d.Reason != "no account found for nobody@x.com" {
		t.Fatalf("expected the lookup error as reason, got %q", d.Reason)
	}
	if len(d.Actions) == 0 {
		t.Fatal("expected a non-empty action list")
	}
}

func TestDiagnose_SubscriptionInactive(t *testing.T) {
	d := Diagnose(Signals{
		SubscriptionStatus: "past_due",
		Devices:            []DeviceSignal{{ID: "dev_1", Online: true}},
	})
	if d.RequiresHuman {
		t.Fatal("an inactive subscription is customer-actionable, not a human case")
	}
}

func TestDiagnose_SubscriptionBeatsOfflineDevices(t *testing.T) {
	// Signals matching both the subscription rule and the all-offline rule
	// must resolve to the subscription branch.
	d := Diagnose(Signals{
		SubscriptionStatus: "canceled",
		Devices:            []DeviceSignal{{ID: "dev_1"}, {ID: "dev_2"}},
	})
	if d.RequiresHuman {
		t.Fatal("subscription branch must win over the device branch")
	}
}

func TestDiagnose_NoDevices(t *testing.T) {
	d := Diagnose(Signals{SubscriptionStatus: "active"})
	if !d.RequiresHuman {
		t.Fatal("missing devices need a human")
	}
	if d.Reason != "account has no devices on record" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestDiagnose_AllOffline(t *testing.T) {
	d := Diagnose(Signals{
		SubscriptionStatus: "active",
		Devices:            []DeviceSignal{{ID: "a"}, {ID: "b"}},
	})
	if !d.RequiresHuman {
		t.Fatal("all-offline needs a human")
	}
}

func TestDiagnose_Inconclusive(t *testing.T) {
	d := Diagnose(Signals{
		SubscriptionStatus: "active",
		Devices:            []DeviceSignal{{ID: "a", Online: true}},
	})
	if !d.RequiresHuman {
		t.Fatal("the inconclusive fallback still escalates")
	}
	if len(d.Actions) == 0 {
		t.Fatal("even the fallback must carry actions")
	}
}

func TestDiagnose_UnknownSubscriptionFallsThrough(t *testing.T) {
	// An empty status means the signal was unavailable, not that the
	// subscription lapsed.
	d := Diagnose(Signals{
		SubscriptionStatus: "",
		Devices:            []DeviceSignal{{ID: "a", Online: true}},
	})
	if d.Summary == "Subscription is not active, which blocks check-in." {
		t.Fatal("missing subscription signal must not report a lapse")
	}
}
