package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionCheck(t *testing.T) {
	readErr := errors.New("read failed")

	tests := []struct {
		name    string
		adm     Admission
		taken   bool
		count   int
		takeErr error
		wantErr error
	}{
		{name: "admitted", adm: Admission{CountKey: "c", Limit: 2, UniqueKey: "u"}, count: 1},
		{name: "limit reached", adm: Admission{CountKey: "c", Limit: 2, UniqueKey: "u"}, count: 2, wantErr: ErrLimitReached},
		{name: "zero limit", adm: Admission{CountKey: "c", Limit: 0}, wantErr: ErrLimitReached},
		{name: "unique held", adm: Admission{CountKey: "c", Limit: 5, UniqueKey: "u"}, taken: true, wantErr: ErrAlreadyExists},
		{name: "unique before limit", adm: Admission{CountKey: "c", Limit: 1, UniqueKey: "u"}, taken: true, count: 1, wantErr: ErrAlreadyExists},
		{name: "no count key ignores count", adm: Admission{UniqueKey: "u"}, count: 100},
		{name: "read error", adm: Admission{UniqueKey: "u"}, takeErr: readErr, wantErr: readErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adm.check(
				func() (bool, error) { return tt.taken, tt.takeErr },
				func() (int, error) { return tt.count, nil },
			)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdmissionCheck_SkipsCountWhenUniqueHeld(t *testing.T) {
	counted := false
	adm := Admission{CountKey: "c", Limit: 1, UniqueKey: "u"}

	err := adm.check(
		func() (bool, error) { return true, nil },
		func() (int, error) {
			counted = true
			return 0, nil
		},
	)

	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.False(t, counted)
}

func TestAdmissionCheck_SkipsUnsetKeys(t *testing.T) {
	called := false
	adm := Admission{}

	err := adm.check(
		func() (bool, error) {
			called = true
			return true, nil
		},
		func() (int, error) {
			called = true
			return 0, nil
		},
	)

	assert.NoError(t, err)
	assert.False(t, called)
}
