package store

import "fmt"

// check applies the admission rule. taken reports whether another live
// document holds the unique key and count returns the live documents under
// the count key; each is consulted only when its key is set, uniqueness first.
func (adm Admission) check(taken func() (bool, error), count func() (int, error)) error {
	if adm.UniqueKey != "" {
		held, err := taken()
		if err != nil {
			return err
		}
		if held {
			return adm.duplicate()
		}
	}
	if adm.CountKey != "" {
		n, err := count()
		if err != nil {
			return err
		}
		if n >= adm.Limit {
			return adm.full()
		}
	}
	return nil
}

func (adm Admission) duplicate() error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, adm.UniqueKey)
}

func (adm Admission) full() error {
	return fmt.Errorf("%w: %s (limit %d)", ErrLimitReached, adm.CountKey, adm.Limit)
}
