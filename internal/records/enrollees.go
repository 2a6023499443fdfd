package records

import (
	"net/url"
	"strconv"
	"strings"

	"schoolrecords/internal/apperrors"
)

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

// DefaultImageURL derives the placeholder avatar for an enrollee name.
func DefaultImageURL(name string) string {
	return avatarBaseURL + url.QueryEscape(name)
}

func normalizeEnrollee(input EnrolleeInput) (EnrolleeInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Group = strings.TrimSpace(input.Group)
	input.GuardianName = strings.TrimSpace(input.GuardianName)
	input.GuardianPhone = strings.TrimSpace(input.GuardianPhone)
	input.ImageURL = strings.TrimSpace(input.ImageURL)
	input.Address = trimmedOrNil(input.Address)
	input.DateOfBirth = trimmedOrNil(input.DateOfBirth)
	input.MedicalNotes = trimmedOrNil(input.MedicalNotes)
	if err := validateStruct(input); err != nil {
		return input, err
	}
	if input.ImageURL == "" {
		input.ImageURL = DefaultImageURL(input.Name)
	}
	return input, nil
}

func enrolleeFromInput(id int, input EnrolleeInput) Enrollee {
	return Enrollee{
		ID:             id,
		Name:           input.Name,
		Group:          input.Group,
		SequenceNumber: input.SequenceNumber,
		GuardianName:   input.GuardianName,
		GuardianPhone:  input.GuardianPhone,
		Address:        cloneString(input.Address),
		DateOfBirth:    cloneString(input.DateOfBirth),
		MedicalNotes:   cloneString(input.MedicalNotes),
		ImageURL:       input.ImageURL,
	}
}

// CreateEnrollee validates input and stores a new enrollee.
func (s *Store) CreateEnrollee(input EnrolleeInput) (Enrollee, error) {
	input, err := normalizeEnrollee(input)
	if err != nil {
		return Enrollee{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.seq.Enrollees++
	enrollee := enrolleeFromInput(s.state.seq.Enrollees, input)
	s.state.enrollees = append(s.state.enrollees, enrollee)
	return cloneEnrollee(enrollee), nil
}

// ReplaceEnrollee overwrites every field of an existing enrollee, keeping its id.
func (s *Store) ReplaceEnrollee(id int, input EnrolleeInput) (Enrollee, error) {
	input, err := normalizeEnrollee(input)
	if err != nil {
		return Enrollee{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.enrolleeIndex(id)
	if !ok {
		return Enrollee{}, enrolleeNotFound(id)
	}
	enrollee := enrolleeFromInput(id, input)
	s.state.enrollees[idx] = enrollee
	return cloneEnrollee(enrollee), nil
}

// GetEnrollee returns a copy of the enrollee with the given id.
func (s *Store) GetEnrollee(id int) (Enrollee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.enrolleeIndex(id)
	if !ok {
		return Enrollee{}, enrolleeNotFound(id)
	}
	return cloneEnrollee(s.state.enrollees[idx]), nil
}

// ListEnrollees returns every enrollee in creation order.
func (s *Store) ListEnrollees() []Enrollee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEnrollees(s.state.enrollees)
}

// enrolleeIndex must be called with the lock held.
func (s *Store) enrolleeIndex(id int) (int, bool) {
	list := s.state.enrollees
	return findIndex(len(list), func(i int) int { return list[i].ID }, id)
}

// enrolleeName resolves a display name for joined views. Callers hold the lock.
func (s *Store) enrolleeName(id int) string {
	if idx, ok := s.enrolleeIndex(id); ok {
		return s.state.enrollees[idx].Name
	}
	return UnknownName
}

func enrolleeNotFound(id int) error {
	return apperrors.NotFound("enrollee " + strconv.Itoa(id) + " not found")
}
