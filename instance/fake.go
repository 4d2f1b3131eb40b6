package instance

import (
	"github.com/dsbsim/dsb/model"
)

// FakeSlave is a minimal in-memory Slave used by tests and by the
// dsbdemo front-end (package cmd) to exercise the bus without a real FMU. Real
// wrappers (out of this design's scope, per spec.md §1) would instead
// marshal these calls to an FMU.
type FakeSlave struct {
	typeDesc model.SlaveTypeDescription

	reals    map[model.VariableID]float64
	integers map[model.VariableID]int64
	booleans map[model.VariableID]bool
	strings  map[model.VariableID]string

	// SetupOK, if false, makes Setup reject the interval.
	SetupOK bool

	// TooBigAbove, if non-zero, makes DoStep return StepTooBig whenever
	// deltaT exceeds it.
	TooBigAbove model.StepTime

	// OnStep, if set, is called at the start of every DoStep — tests use
	// it to observe mailbox/input values the agent set just before
	// stepping (spec.md §8 scenario 1).
	OnStep func(s *FakeSlave, currentT, deltaT model.StepTime)

	stepCount int
}

// NewFakeSlave creates a FakeSlave with the given type description and all
// variables initialized to their zero value.
func NewFakeSlave(typeDesc model.SlaveTypeDescription) *FakeSlave {
	s := &FakeSlave{
		typeDesc: typeDesc,
		reals:    make(map[model.VariableID]float64),
		integers: make(map[model.VariableID]int64),
		booleans: make(map[model.VariableID]bool),
		strings:  make(map[model.VariableID]string),
		SetupOK:  true,
	}
	return s
}

func (s *FakeSlave) Setup(start, stop model.StepTime, executionName, slaveName string) bool {
	return s.SetupOK
}

func (s *FakeSlave) TypeDescription() model.SlaveTypeDescription { return s.typeDesc }

func (s *FakeSlave) GetReal(id model.VariableID) (float64, error) {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return 0, ErrUnknownVariable(id)
	}
	return s.reals[id], nil
}

func (s *FakeSlave) SetReal(id model.VariableID, value float64) error {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return ErrUnknownVariable(id)
	}
	s.reals[id] = value
	return nil
}

func (s *FakeSlave) GetInteger(id model.VariableID) (int64, error) {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return 0, ErrUnknownVariable(id)
	}
	return s.integers[id], nil
}

func (s *FakeSlave) SetInteger(id model.VariableID, value int64) error {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return ErrUnknownVariable(id)
	}
	s.integers[id] = value
	return nil
}

func (s *FakeSlave) GetBoolean(id model.VariableID) (bool, error) {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return false, ErrUnknownVariable(id)
	}
	return s.booleans[id], nil
}

func (s *FakeSlave) SetBoolean(id model.VariableID, value bool) error {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return ErrUnknownVariable(id)
	}
	s.booleans[id] = value
	return nil
}

func (s *FakeSlave) GetString(id model.VariableID) (string, error) {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return "", ErrUnknownVariable(id)
	}
	return s.strings[id], nil
}

func (s *FakeSlave) SetString(id model.VariableID, value string) error {
	if _, ok := s.typeDesc.VariableByID(id); !ok {
		return ErrUnknownVariable(id)
	}
	s.strings[id] = value
	return nil
}

func (s *FakeSlave) DoStep(currentT, deltaT model.StepTime) (StepResult, error) {
	s.stepCount++
	if s.OnStep != nil {
		s.OnStep(s, currentT, deltaT)
	}
	if s.TooBigAbove != 0 && deltaT > s.TooBigAbove {
		return StepTooBig, nil
	}
	return StepOk, nil
}

// StepCount reports how many times DoStep has been called, for assertions.
func (s *FakeSlave) StepCount() int { return s.stepCount }
