package enums

type RenewalPolicy string

const (
	// RenewalPolicyReplace restarts the window at activation time.
	RenewalPolicyReplace RenewalPolicy = "replace"
	// RenewalPolicyStack extends from the later of now and the current expiry.
	RenewalPolicyStack RenewalPolicy = "stack"
)
