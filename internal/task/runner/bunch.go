package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Bunch runs its members in order and stops at the first failure.
type Bunch struct {
	members []Runner
	name    string
}

// NewBunch returns a bunch named "<idx>::<type>::<name>; ..." after its members.
func NewBunch(members ...Runner) (*Bunch, error) {
	if len(members) == 0 {
		return nil, errors.New("bunch is empty")
	}
	parts := make([]string, 0, len(members))
	for i, m := range members {
		if m == nil {
			return nil, fmt.Errorf("bunch member %d is nil", i)
		}
		parts = append(parts, strconv.Itoa(i)+"::"+m.Type()+"::"+m.Name())
	}
	return &Bunch{members: append([]Runner(nil), members...), name: strings.Join(parts, "; ")}, nil
}

func (b *Bunch) Run(ctx context.Context) error {
	for _, m := range b.members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bunch) Name() string { return b.name }
func (b *Bunch) Type() string { return TypeBunch }

// Members returns the bunch members in run order.
func (b *Bunch) Members() []Runner { return append([]Runner(nil), b.members...) }
