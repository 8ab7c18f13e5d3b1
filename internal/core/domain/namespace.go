package domain

// Namespace identifies one of the independent socket endpoints.
// Rooms in different namespaces never interact, even when derived from the same ids.
type Namespace string

const (
	NamespaceQueue  Namespace = "queue"
	NamespaceWard   Namespace = "ipd_ward"
	NamespaceDoctor Namespace = "ipd_doctor"
	NamespaceNurse  Namespace = "ipd_nurse"
)

// SubjectField names the join descriptor field that, together with
// hospital_id, selects a room in a namespace.
type SubjectField string

const (
	SubjectDoctor SubjectField = "doctor_id"
	SubjectWard   SubjectField = "ward_id"
)

// AllNamespaces returns every namespace in a stable order.
func AllNamespaces() []Namespace {
	return []Namespace{NamespaceQueue, NamespaceWard, NamespaceDoctor, NamespaceNurse}
}

// IsValid checks if the namespace is one of the known endpoints.
func (n Namespace) IsValid() bool {
	switch n {
	case NamespaceQueue, NamespaceWard, NamespaceDoctor, NamespaceNurse:
		return true
	}
	return false
}

// Path returns the fixed websocket path for the namespace.
func (n Namespace) Path() string {
	switch n {
	case NamespaceQueue:
		return "/ws/queue"
	case NamespaceWard:
		return "/ws/ipd/ward"
	case NamespaceDoctor:
		return "/ws/ipd/doctor"
	case NamespaceNurse:
		return "/ws/ipd/nurse"
	}
	return ""
}

// Subject returns the join field that identifies the room subject.
func (n Namespace) Subject() SubjectField {
	switch n {
	case NamespaceWard, NamespaceNurse:
		return SubjectWard
	default:
		return SubjectDoctor
	}
}

// keyPrefix is prepended to hospital and subject ids when deriving room keys.
// The general queue uses bare "{hospital}_{doctor}" keys.
func (n Namespace) keyPrefix() string {
	switch n {
	case NamespaceWard:
		return "ipd_ward_"
	case NamespaceDoctor:
		return "ipd_doctor_"
	case NamespaceNurse:
		return "ipd_nurse_"
	}
	return ""
}
