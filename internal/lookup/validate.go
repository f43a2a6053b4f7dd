package lookup

import (
	"errors"
	"fmt"
)

// ErrUnbounded is returned for name scans without a limit.
var ErrUnbounded = errors.New("name lookup requires a limit")

// Validate rejects lookups that would compile to meaningless or unbounded
// SQL: empty identifiers, empty id sets, empty key sets, and name scans
// without a limit.
func Validate(s Select) error {
	if s.Limit < 0 {
		return fmt.Errorf("negative limit %d", s.Limit)
	}
	if s.Order != OrderByID && s.Order != OrderMasterFirst {
		return fmt.Errorf("unknown order %d", s.Order)
	}
	if s.Filter == nil {
		return nil
	}

	v := &validator{}
	if err := v.visit(s.Filter); err != nil {
		return err
	}
	if v.nameScan && s.Limit == 0 {
		return ErrUnbounded
	}
	return nil
}

type validator struct {
	nameScan bool
}

func (v *validator) visit(p Predicate) error {
	switch pred := p.(type) {
	case Active:
		return nil
	case EmailIs:
		if pred.Email == "" {
			return fmt.Errorf("EmailIs: empty email")
		}
	case PhoneIs:
		if pred.Phone == "" {
			return fmt.Errorf("PhoneIs: empty phone")
		}
	case NameContainsAny:
		if len(pred.Keys) == 0 {
			return fmt.Errorf("NameContainsAny: no keys")
		}
		for i, k := range pred.Keys {
			if k == "" {
				return fmt.Errorf("NameContainsAny: key %d is empty", i)
			}
		}
		v.nameScan = true
	case IDIn:
		if len(pred.IDs) == 0 {
			return fmt.Errorf("IDIn: no ids")
		}
	case IDAfter:
		if pred.ID == "" {
			return fmt.Errorf("IDAfter: empty id")
		}
	case GroupIs:
		if pred.GroupID == "" {
			return fmt.Errorf("GroupIs: empty group id")
		}
	case And:
		if len(pred.Predicates) == 0 {
			return fmt.Errorf("And: no predicates")
		}
		for i, sub := range pred.Predicates {
			if sub == nil {
				return fmt.Errorf("And: predicate %d is nil", i)
			}
			if err := v.visit(sub); err != nil {
				return fmt.Errorf("And[%d]: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
	return nil
}
