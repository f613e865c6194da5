// SPDX-License-Identifier: Apache-2.0

package checkin

import "fmt"

// Signals are the account facts collected before diagnosis.
type Signals struct {
	LookupError        string
	SubscriptionStatus string
	Devices            []DeviceSignal
}

type DeviceSignal struct {
	ID     string
	Online bool
}

// Diagnosis is the structured outcome of the rule cascade.
type Diagnosis struct {
	Summary       string
	Reason        string
	Actions       []string
	RequiresHuman bool
}

// Diagnose maps signals to a diagnosis in fixed priority order; the first
// matching rule wins. Pure, so re-running it on the same context is safe.
func Diagnose(s Signals) Diagnosis {
	if s.LookupError != "" {
		return Diagnosis{
			Summary:       "Could not resolve the customer account.",
			Reason:        s.LookupError,
			RequiresHuman: true,
			Actions: []string{
				"Confirm the correct account email or customer id with the customer.",
				"Collect the device id printed on the unit.",
			},
		}
	}

	// An empty status means the subscription signal itself was unavailable;
	// fall through to the device rules rather than misreporting a lapse.
	if s.SubscriptionStatus != "" && s.SubscriptionStatus != "active" {
		return Diagnosis{
			Summary:       "Subscription is not active, which blocks check-in.",
			Reason:        fmt.Sprintf("subscription status is %q", s.SubscriptionStatus),
			RequiresHuman: false,
			Actions: []string{
				"Explain the subscription state and how to renew.",
				"Collect payment confirmation if the customer just updated billing.",
			},
		}
	}

	if len(s.Devices) == 0 {
		return Diagnosis{
			Summary:       "No devices are registered on this account.",
			Reason:        "account has no devices on record",
			RequiresHuman: true,
			Actions: []string{
				"Verify the device id with the customer.",
				"Confirm device assignment in the admin console.",
			},
		}
	}

	allOffline := true
	for _, d := range s.Devices {
		if d.Online {
			allOffline = false
			break
		}
	}
	if allOffline {
		return Diagnosis{
			Summary:       "Every device on the account is offline.",
			Reason:        fmt.Sprintf("all %d known devices report offline", len(s.Devices)),
			RequiresHuman: true,
			Actions: []string{
				"Guide the customer through a restart and connectivity check.",
				"Confirm the device id matches the unit on site.",
				"Escalate for a remote reset if it stays offline.",
			},
		}
	}

	return Diagnosis{
		Summary:       "Account and devices look healthy; the cause is unclear.",
		Reason:        "signals are inconclusive",
		RequiresHuman: true,
		Actions: []string{
			"Collect more detail about what the customer sees.",
			"Escalate with logs and current device status attached.",
		},
	}
}
