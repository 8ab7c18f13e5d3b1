package domain

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
)

// entityIDPattern keeps ids free of the "_" separator so that distinct
// tuples can never render to the same room key. An id starts with a letter
// or digit, so "-" alone is not an id.
var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// RoomKey is the deterministic identifier of an audience scope.
type RoomKey string

func (k RoomKey) String() string {
	return string(k)
}

// RoomRef is the decoded form of a room key.
type RoomRef struct {
	Namespace  Namespace
	HospitalID string
	SubjectID  string
}

// Key renders the reference back into its room key.
func (r RoomRef) Key() RoomKey {
	return RoomKey(r.Namespace.keyPrefix() + r.HospitalID + "_" + r.SubjectID)
}

// ValidateEntityID checks that an id can safely be embedded in a room key.
func ValidateEntityID(id string) error {
	if !entityIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidEntityID, id)
	}
	return nil
}

// RoomFor derives the room key of a namespace from a hospital and subject id.
func RoomFor(ns Namespace, hospitalID, subjectID string) (RoomKey, error) {
	if !ns.IsValid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownNamespace, ns)
	}
	if err := ValidateEntityID(hospitalID); err != nil {
		return "", err
	}
	if err := ValidateEntityID(subjectID); err != nil {
		return "", err
	}
	return RoomRef{Namespace: ns, HospitalID: hospitalID, SubjectID: subjectID}.Key(), nil
}

// QueueRoom is the general appointment queue room of a doctor.
func QueueRoom(hospitalID, doctorID string) (RoomKey, error) {
	return RoomFor(NamespaceQueue, hospitalID, doctorID)
}

// WardRoom is the ward monitoring room of a ward.
func WardRoom(hospitalID, wardID string) (RoomKey, error) {
	return RoomFor(NamespaceWard, hospitalID, wardID)
}

// DoctorRoom is the IPD dashboard room of a doctor.
func DoctorRoom(hospitalID, doctorID string) (RoomKey, error) {
	return RoomFor(NamespaceDoctor, hospitalID, doctorID)
}

// NurseRoom is the nurse station room of a ward.
func NurseRoom(hospitalID, wardID string) (RoomKey, error) {
	return RoomFor(NamespaceNurse, hospitalID, wardID)
}

// ParseRoomKey decodes a room key into its namespace and ids.
func ParseRoomKey(key string) (RoomRef, error) {
	ns := NamespaceQueue
	rest := key
	for _, candidate := range []Namespace{NamespaceWard, NamespaceDoctor, NamespaceNurse} {
		if prefix := candidate.keyPrefix(); strings.HasPrefix(key, prefix) {
			ns = candidate
			rest = strings.TrimPrefix(key, prefix)
			break
		}
	}

	hospitalID, subjectID, ok := strings.Cut(rest, "_")
	if !ok || ValidateEntityID(hospitalID) != nil || ValidateEntityID(subjectID) != nil {
		return RoomRef{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidRoomKey, key)
	}

	return RoomRef{Namespace: ns, HospitalID: hospitalID, SubjectID: subjectID}, nil
}
