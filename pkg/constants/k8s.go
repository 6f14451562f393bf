package constants

// K8s label keys
const (
	LabelApp       = "app"                     // Primary container id
	LabelManagedBy = "managed-by"              // Manager identifier
	LabelParent    = "intelliscale.io/parent"  // Primary container id on replica pods
	LabelReplica   = "intelliscale.io/replica" // "true" on replica pods

	ManagedByIntelliScale = "intelliscale"
)

// Pod phase constants (from K8s)
const (
	PodPhaseRunning   = "Running"
	PodPhasePending   = "Pending"
	PodPhaseSucceeded = "Succeeded"
	PodPhaseFailed    = "Failed"
)
