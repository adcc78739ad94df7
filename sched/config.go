package sched

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Options sizes a Scheduler. JobCount and FiberCount bound how many jobs
// can be outstanding and how many can be simultaneously suspended on
// fibers at once; QueueCount is the number of independently-run queues;
// StackSize is carried for sizing-API parity and must still be a power of
// two, even though a goroutine's stack grows on demand regardless.
type Options struct {
	JobCount   uint32 `validate:"required,poweroftwo"`
	QueueCount uint32 `validate:"required,min=1"`
	FiberCount uint32 `validate:"required,min=1"`
	StackSize  uint32 `validate:"required,poweroftwo"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("poweroftwo", func(fl validator.FieldLevel) bool {
		n := fl.Field().Uint()
		return n != 0 && n&(n-1) == 0
	})
	return v
}

// validate turns a validation failure into a Sizing fatal precondition:
// job_count or stack_size not a power of two.
func (o Options) validate(log zerolog.Logger) {
	if err := validate.Struct(o); err != nil {
		fail(log, KindSizing, err.Error())
	}
}
