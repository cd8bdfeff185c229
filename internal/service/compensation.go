package service

import (
	"context"
	"errors"
	"fmt"
)

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// compensations откатывают уже выполненные шаги, если следующий шаг не удался.
// Они выполняются в обратном порядке, и ошибка одной не останавливает остальные.
type compensations []compensation

func (c *compensations) add(name string, fn func(ctx context.Context) error) {
	*c = append(*c, compensation{name: name, fn: fn})
}

func (c compensations) run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c[i].name, err))
		}
	}
	return errors.Join(errs...)
}
