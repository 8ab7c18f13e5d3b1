package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
)

// maxNumericIDDigits bounds numeric ids, exponent included, so that a
// short literal such as 1e999999 cannot expand into a huge key.
const maxNumericIDDigits = 64

// EntityID is an id received from a client. Clients send ids either as
// JSON strings or as JSON numbers. Strings are kept verbatim; numbers must
// be non-negative integers and are rendered in plain decimal, so 1000, 1e3
// and 1000.0 all name the same entity.
type EntityID string

// UnmarshalJSON accepts a string or a number.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntityID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	decimal, err := canonicalNumber(n)
	if err != nil {
		return err
	}
	*id = EntityID(decimal)
	return nil
}

// canonicalNumber renders an integral JSON number in plain decimal.
func canonicalNumber(n json.Number) (string, error) {
	s := n.String()
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxNumericIDDigits || exp < -maxNumericIDDigits {
			return "", fmt.Errorf("%w: numeric id %s is out of range", apperrors.ErrInvalidEntityID, s)
		}
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("%w: invalid numeric id %s", apperrors.ErrInvalidEntityID, s)
	}
	if !r.IsInt() {
		return "", fmt.Errorf("%w: numeric id %s is not an integer", apperrors.ErrInvalidEntityID, s)
	}
	if r.Sign() < 0 {
		return "", fmt.Errorf("%w: numeric id %s is negative", apperrors.ErrInvalidEntityID, s)
	}

	decimal := r.Num().String()
	if len(decimal) > maxNumericIDDigits {
		return "", fmt.Errorf("%w: numeric id %s is out of range", apperrors.ErrInvalidEntityID, s)
	}
	return decimal, nil
}

// JoinDescriptor is the first message a client sends on a namespace.
type JoinDescriptor struct {
	HospitalID EntityID `json:"hospital_id"`
	DoctorID   EntityID `json:"doctor_id,omitempty"`
	WardID     EntityID `json:"ward_id,omitempty"`
}

// Subject returns the id selected by the namespace's subject field.
func (j JoinDescriptor) Subject(ns Namespace) EntityID {
	if ns.Subject() == SubjectWard {
		return j.WardID
	}
	return j.DoctorID
}

// ParseJoin decodes a join message for a namespace and derives its room key.
// Every failure wraps ErrMalformedJoin.
func ParseJoin(ns Namespace, raw []byte) (RoomKey, error) {
	var desc JoinDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrMalformedJoin, err)
	}

	if desc.HospitalID == "" {
		return "", fmt.Errorf("%w: hospital_id is required", apperrors.ErrMalformedJoin)
	}

	subject := desc.Subject(ns)
	if subject == "" {
		return "", fmt.Errorf("%w: %s is required", apperrors.ErrMalformedJoin, ns.Subject())
	}

	key, err := RoomFor(ns, string(desc.HospitalID), string(subject))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrMalformedJoin, err)
	}
	return key, nil
}
